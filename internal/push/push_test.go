package push

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gatewayURL = "https://push.example.com/v1/send"

func TestSendMulticast(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	g := NewHTTPGateway(gatewayURL, "test-key", 5*time.Second)
	httpmock.ActivateNonDefault(g.client)

	httpmock.RegisterResponder(http.MethodPost, gatewayURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "key=test-key", req.Header.Get("Authorization"))

			var body multicastRequest
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Len(t, body.Tokens, 2)
			assert.Equal(t, "You got a hug", body.Notification.Title)

			return httpmock.NewJsonResponse(http.StatusOK, MulticastResult{
				SuccessCount: 2,
				Results: []TokenResult{
					{Token: body.Tokens[0], Success: true},
					{Token: body.Tokens[1], Success: true},
				},
			})
		})

	result, err := g.SendMulticast(context.Background(), []string{"tok_a", "tok_b"},
		Notification{Title: "You got a hug", Body: "From your pair"}, map[string]string{"hug_id": "hug_1"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 0, result.FailureCount)
}

func TestSendMulticastNoTokens(t *testing.T) {
	g := NewHTTPGateway(gatewayURL, "", 5*time.Second)

	// no responder registered: a gateway call here would fail the test
	result, err := g.SendMulticast(context.Background(), nil, Notification{Title: "t"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, 0, result.FailureCount)
}

func TestSendMulticastGatewayError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	g := NewHTTPGateway(gatewayURL, "", 5*time.Second)
	httpmock.ActivateNonDefault(g.client)

	httpmock.RegisterResponder(http.MethodPost, gatewayURL,
		httpmock.NewStringResponder(http.StatusBadGateway, "upstream down"))

	_, err := g.SendMulticast(context.Background(), []string{"tok_a"}, Notification{Title: "t"}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	g := NewHTTPGateway(gatewayURL, "", 5*time.Second)
	httpmock.ActivateNonDefault(g.client)

	httpmock.RegisterResponder(http.MethodPost, gatewayURL,
		httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))

	for i := 0; i < 5; i++ {
		_, err := g.SendMulticast(context.Background(), []string{"tok"}, Notification{Title: "t"}, nil)
		require.Error(t, err)
	}

	// breaker now rejects without hitting the gateway
	before := httpmock.GetTotalCallCount()
	_, err := g.SendMulticast(context.Background(), []string{"tok"}, Notification{Title: "t"}, nil)
	assert.Error(t, err)
	assert.Equal(t, before, httpmock.GetTotalCallCount(), "open breaker must short-circuit")
}
