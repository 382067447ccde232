package llm

import (
	"context"
	"sort"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// CheckModels lists the models the default route serves. It doubles as a
// connectivity and credentials check.
func (c *Client) CheckModels(ctx context.Context) ([]string, error) {
	cfg := openai.DefaultConfig(c.cfg.Default.APIKey)
	cfg.BaseURL = c.cfg.Default.BaseURL
	cfg.HTTPClient = c.http

	list, err := openai.NewClientWithConfig(cfg).ListModels(ctx)
	if err != nil {
		c.log.Warn("llm.check.failed", zap.String("base_url", cfg.BaseURL), zap.Error(err))
		return nil, err
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	c.log.Info("llm.check.ok", zap.String("base_url", cfg.BaseURL), zap.Int("models", len(ids)))
	return ids, nil
}
