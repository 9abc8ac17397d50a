package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/graphql-go/graphql"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/observability"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/openapi"
)

// ---------------------------------------------------------------------------
// GraphQL surface. Field names mirror the json tags of the record types so
// the default resolver walks the structs without per-field glue, and the
// dashboard sees the same shape over REST and GraphQL. Slots and block
// numbers are Float because the Int scalar is 32-bit; decimals serialize
// as strings.
// ---------------------------------------------------------------------------

func newSchema(svc *openapi.Service) (graphql.Schema, error) {
	nftEventType := graphql.NewObject(graphql.ObjectConfig{
		Name: "NFTEvent",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.String},
			"kind":         &graphql.Field{Type: graphql.String},
			"collection":   &graphql.Field{Type: graphql.String},
			"token_mint":   &graphql.Field{Type: graphql.String},
			"token_name":   &graphql.Field{Type: graphql.String},
			"from":         &graphql.Field{Type: graphql.String},
			"to":           &graphql.Field{Type: graphql.String},
			"price":        &graphql.Field{Type: graphql.String},
			"currency":     &graphql.Field{Type: graphql.String},
			"tx_signature": &graphql.Field{Type: graphql.String},
			"slot":         &graphql.Field{Type: graphql.Float},
			"block_time":   &graphql.Field{Type: graphql.DateTime},
		},
	})

	marketplaceEventType := graphql.NewObject(graphql.ObjectConfig{
		Name: "MarketplaceEvent",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.String},
			"kind":         &graphql.Field{Type: graphql.String},
			"marketplace":  &graphql.Field{Type: graphql.String},
			"collection":   &graphql.Field{Type: graphql.String},
			"token_mint":   &graphql.Field{Type: graphql.String},
			"seller":       &graphql.Field{Type: graphql.String},
			"buyer":        &graphql.Field{Type: graphql.String},
			"price":        &graphql.Field{Type: graphql.String},
			"fee":          &graphql.Field{Type: graphql.String},
			"tx_signature": &graphql.Field{Type: graphql.String},
			"block_number": &graphql.Field{Type: graphql.Float},
			"block_hash":   &graphql.Field{Type: graphql.String},
			"block_time":   &graphql.Field{Type: graphql.DateTime},
		},
	})

	balanceType := graphql.NewObject(graphql.ObjectConfig{
		Name: "AccountBalance",
		Fields: graphql.Fields{
			"address":      &graphql.Field{Type: graphql.String},
			"token_symbol": &graphql.Field{Type: graphql.String},
			"token_mint":   &graphql.Field{Type: graphql.String},
			"amount":       &graphql.Field{Type: graphql.String},
			"value_usd":    &graphql.Field{Type: graphql.String},
			"updated_at":   &graphql.Field{Type: graphql.DateTime},
		},
	})

	transactionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TransactionRecord",
		Fields: graphql.Fields{
			"signature":  &graphql.Field{Type: graphql.String},
			"slot":       &graphql.Field{Type: graphql.Float},
			"block_time": &graphql.Field{Type: graphql.DateTime},
			"sender":     &graphql.Field{Type: graphql.String},
			"receiver":   &graphql.Field{Type: graphql.String},
			"amount":     &graphql.Field{Type: graphql.String},
			"fee":        &graphql.Field{Type: graphql.String},
			"status":     &graphql.Field{Type: graphql.String},
			"kind":       &graphql.Field{Type: graphql.String},
			"program_id": &graphql.Field{Type: graphql.String},
		},
	})

	tokenPriceType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TokenPrice",
		Fields: graphql.Fields{
			"mint":       &graphql.Field{Type: graphql.String},
			"symbol":     &graphql.Field{Type: graphql.String},
			"price":      &graphql.Field{Type: graphql.String},
			"currency":   &graphql.Field{Type: graphql.String},
			"volume_24h": &graphql.Field{Type: graphql.String},
			"change_24h": &graphql.Field{Type: graphql.String},
			"timestamp":  &graphql.Field{Type: graphql.DateTime},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"nftEvents": &graphql.Field{
				Type: graphql.NewList(nftEventType),
				Args: graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					limit, _ := p.Args["limit"].(int)
					return svc.NFTEvents(p.Context, limit)
				},
			},
			"marketplaceEvents": &graphql.Field{
				Type: graphql.NewList(marketplaceEventType),
				Args: graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					limit, _ := p.Args["limit"].(int)
					return svc.MarketplaceEvents(p.Context, limit)
				},
			},
			"balances": &graphql.Field{
				Type: graphql.NewList(balanceType),
				Args: graphql.FieldConfigArgument{
					"address": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					address, _ := p.Args["address"].(string)
					return svc.Balances(p.Context, address)
				},
			},
			"transactions": &graphql.Field{
				Type: graphql.NewList(transactionType),
				Args: graphql.FieldConfigArgument{
					"address": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"limit":   &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					address, _ := p.Args["address"].(string)
					limit, _ := p.Args["limit"].(int)
					return svc.Transactions(p.Context, address, limit)
				},
			},
			"tokenPrice": &graphql.Field{
				Type: tokenPriceType,
				Args: graphql.FieldConfigArgument{
					"mint": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					mint, _ := p.Args["mint"].(string)
					return svc.TokenPrice(p.Context, mint)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}

type graphqlRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

// NewGraphQLHandler builds the POST /graphql endpoint. Execution errors ride
// inside the 200 response body the way GraphQL clients expect; only an
// unreadable request is an HTTP error.
func NewGraphQLHandler(svc *openapi.Service, registry *observability.Registry) (gin.HandlerFunc, error) {
	schema, err := newSchema(svc)
	if err != nil {
		return nil, err
	}
	if registry == nil {
		registry = observability.NewRegistry()
	}
	queries := registry.NewCounter("openapi_graphql_queries_total",
		"GraphQL queries executed", nil)

	return func(c *gin.Context) {
		var req graphqlRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid graphql request body"})
			return
		}
		queries.Inc()
		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			OperationName:  req.OperationName,
			VariableValues: req.Variables,
			Context:        c.Request.Context(),
		})
		c.JSON(http.StatusOK, result)
	}, nil
}
