package kusto

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"go.uber.org/zap"

	"github.com/kusto-mcp/kusto-engine/pkg/apperrors"
	"github.com/kusto-mcp/kusto-engine/pkg/logging"
)

// kustoScope is the AAD scope for Azure Data Explorer. A single scope
// covers every cluster.
const kustoScope = "https://kusto.windows.net/.default"

// AzureTokenProvider acquires AAD tokens through a chain of credential
// sources: environment service principal, managed identity, Azure CLI, and
// finally interactive browser login.
type AzureTokenProvider struct {
	credential azcore.TokenCredential
	scope      string
	logger     *zap.Logger
}

var _ TokenProvider = (*AzureTokenProvider)(nil)

// NewAzureTokenProvider assembles the credential chain. Sources that cannot
// be constructed at all (no environment variables, no browser) are skipped;
// the chain decides at token time which remaining source answers.
func NewAzureTokenProvider(logger *zap.Logger) (*AzureTokenProvider, error) {
	var sources []azcore.TokenCredential

	if cred, err := azidentity.NewEnvironmentCredential(nil); err == nil {
		sources = append(sources, cred)
	}
	if cred, err := azidentity.NewManagedIdentityCredential(nil); err == nil {
		sources = append(sources, cred)
	}
	if cred, err := azidentity.NewAzureCLICredential(nil); err == nil {
		sources = append(sources, cred)
	}
	if cred, err := azidentity.NewInteractiveBrowserCredential(nil); err == nil {
		sources = append(sources, cred)
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no Azure credential source available", apperrors.ErrAuth)
	}

	chain, err := azidentity.NewChainedTokenCredential(sources, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building credential chain: %v", apperrors.ErrAuth, err)
	}

	return &AzureTokenProvider{
		credential: chain,
		scope:      kustoScope,
		logger:     logger.Named("auth"),
	}, nil
}

// Token returns a bearer token for cluster requests. azidentity caches and
// refreshes tokens internally, so no caching happens here.
func (p *AzureTokenProvider) Token(ctx context.Context) (string, error) {
	tok, err := p.credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{p.scope}})
	if err != nil {
		p.logger.Debug("token acquisition failed", zap.String("error", logging.SanitizeError(err)))
		return "", fmt.Errorf("%w: %s", apperrors.ErrAuth, logging.SanitizeError(err))
	}
	return tok.Token, nil
}
