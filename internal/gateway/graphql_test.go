package gateway

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/solana"
)

type graphqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func postGraphQL(t *testing.T, srv *Server, body string) (int, graphqlResponse) {
	t.Helper()
	w := doRequest(t, srv, http.MethodPost, "/graphql", body)
	var resp graphqlResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func TestGraphQL_NFTEvents(t *testing.T) {
	srv := newTestServer(t, nil)

	code, resp := postGraphQL(t, srv, `{"query":"{ nftEvents(limit: 3) { id kind collection token_mint price tx_signature slot block_time } }"}`)
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, resp.Errors)

	var evs []struct {
		ID          string  `json:"id"`
		Kind        string  `json:"kind"`
		Collection  string  `json:"collection"`
		TokenMint   string  `json:"token_mint"`
		Price       string  `json:"price"`
		TxSignature string  `json:"tx_signature"`
		Slot        float64 `json:"slot"`
		BlockTime   string  `json:"block_time"`
	}
	require.NoError(t, json.Unmarshal(resp.Data["nftEvents"], &evs))
	require.Len(t, evs, 3)
	for _, ev := range evs {
		assert.NotEmpty(t, ev.ID)
		assert.NotEmpty(t, ev.Collection)
		assert.NotEmpty(t, ev.Price)
		assert.Greater(t, ev.Slot, 0.0)
		assert.NotEmpty(t, ev.BlockTime)
	}
}

func TestGraphQL_MarketplaceEvents(t *testing.T) {
	srv := newTestServer(t, nil)

	code, resp := postGraphQL(t, srv, `{"query":"{ marketplaceEvents(limit: 2) { id marketplace collection price fee block_number } }"}`)
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, resp.Errors)

	var evs []struct {
		Marketplace string  `json:"marketplace"`
		BlockNumber float64 `json:"block_number"`
	}
	require.NoError(t, json.Unmarshal(resp.Data["marketplaceEvents"], &evs))
	require.Len(t, evs, 2)
	assert.NotEmpty(t, evs[0].Marketplace)
	assert.Greater(t, evs[0].BlockNumber, 0.0)
}

func TestGraphQL_VariablesAndOperationName(t *testing.T) {
	srv := newTestServer(t, nil)

	body, err := json.Marshal(map[string]any{
		"query": `
			query Balances($address: String!) { balances(address: $address) { address token_symbol amount value_usd } }
			query History($address: String!) { transactions(address: $address, limit: 4) { signature status } }
		`,
		"operationName": "History",
		"variables":     map[string]any{"address": testWallet},
	})
	require.NoError(t, err)

	code, resp := postGraphQL(t, srv, string(body))
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, resp.Errors)

	var txs []struct {
		Signature string `json:"signature"`
		Status    string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(resp.Data["transactions"], &txs))
	require.Len(t, txs, 4)
	assert.NotEmpty(t, txs[0].Signature)
	_, hasBalances := resp.Data["balances"]
	assert.False(t, hasBalances, "only the selected operation runs")
}

func TestGraphQL_TokenPrice(t *testing.T) {
	srv := newTestServer(t, nil)

	body, err := json.Marshal(map[string]any{
		"query":     `query($mint: String!) { tokenPrice(mint: $mint) { mint symbol price currency volume_24h change_24h timestamp } }`,
		"variables": map[string]any{"mint": string(solana.SOLMint)},
	})
	require.NoError(t, err)

	code, resp := postGraphQL(t, srv, string(body))
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, resp.Errors)

	var price struct {
		Mint     string `json:"mint"`
		Symbol   string `json:"symbol"`
		Price    string `json:"price"`
		Currency string `json:"currency"`
	}
	require.NoError(t, json.Unmarshal(resp.Data["tokenPrice"], &price))
	assert.Equal(t, string(solana.SOLMint), price.Mint)
	assert.Equal(t, "SOL", price.Symbol)
	assert.NotEmpty(t, price.Price)
}

func TestGraphQL_InvalidAddressSurfacesAsError(t *testing.T) {
	srv := newTestServer(t, nil)

	code, resp := postGraphQL(t, srv, `{"query":"{ balances(address: \"junk\") { address } }"}`)
	require.Equal(t, http.StatusOK, code, "execution errors stay in the body")
	require.NotEmpty(t, resp.Errors)
	assert.Contains(t, resp.Errors[0].Message, "invalid address")
}

func TestGraphQL_UnknownFieldRejected(t *testing.T) {
	srv := newTestServer(t, nil)

	code, resp := postGraphQL(t, srv, `{"query":"{ nope { id } }"}`)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, resp.Errors)
	assert.Contains(t, resp.Errors[0].Message, `Cannot query field "nope"`)
}

func TestGraphQL_MalformedBodyRejected(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(t, srv, http.MethodPost, "/graphql", `{"query": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid graphql request body")
}

func TestGraphQL_QueriesCounted(t *testing.T) {
	srv := newTestServer(t, nil)

	for i := 0; i < 3; i++ {
		code, _ := postGraphQL(t, srv, `{"query":"{ nftEvents(limit: 1) { id } }"}`)
		require.Equal(t, http.StatusOK, code)
	}

	w := doRequest(t, srv, http.MethodGet, "/metrics", "")
	assert.Contains(t, w.Body.String(), "openapi_graphql_queries_total 3")
}
