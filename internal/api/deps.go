package api

import (
	"github.com/Harshitk-cp/diagnostician/internal/config"
	"github.com/Harshitk-cp/diagnostician/internal/domain"
	"github.com/Harshitk-cp/diagnostician/internal/embedding"
	"github.com/Harshitk-cp/diagnostician/internal/knowledge"
	"github.com/Harshitk-cp/diagnostician/internal/llm"
	"github.com/Harshitk-cp/diagnostician/internal/metrics"
	"github.com/Harshitk-cp/diagnostician/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Dependencies are the config-driven collaborators shared by the HTTP server
// and the CLI.
type Dependencies struct {
	Knowledge *knowledge.Base
	Oracle    domain.Oracle
	Embedder  domain.EmbeddingClient
	Workflow  service.WorkflowConfig
	Metrics   *metrics.Workflow
}

// NewDependencies builds every collaborator from config. Provider failures
// degrade rather than abort: an unusable oracle becomes the offline oracle
// and an unusable embedder disables similar-case recall.
func NewDependencies(reg prometheus.Registerer, logger *zap.Logger) Dependencies {
	deps := Dependencies{
		Knowledge: loadKnowledge(logger),
		Workflow:  workflowConfig(),
	}
	if reg != nil {
		deps.Metrics = metrics.NewWorkflow(reg)
	}

	llmProvider := config.LLMProvider()
	client, err := llm.NewClient(llmProvider, config.LLMAPIKey())
	if err != nil {
		logger.Warn("LLM client initialization failed, running offline", zap.String("provider", llmProvider), zap.Error(err))
		client = llm.Offline()
	} else {
		logger.Info("LLM client initialized", zap.String("provider", llmProvider))
	}
	oracle := llm.NewRetryingOracle(client, logger)
	oracle.Timeout = config.OracleTimeout()
	oracle.MaxAttempts = config.OracleMaxAttempts()
	oracle.OnAttempt = deps.Metrics.OracleAttempt
	deps.Oracle = oracle

	embeddingProvider := config.EmbeddingProvider()
	embedder, err := embedding.NewClient(embeddingProvider, config.EmbeddingAPIKey())
	switch {
	case err != nil:
		logger.Warn("Embedding client initialization failed, similar-case recall disabled", zap.String("provider", embeddingProvider), zap.Error(err))
	case embedder == nil:
		logger.Info("similar-case recall disabled")
	default:
		logger.Info("Embedding client initialized", zap.String("provider", embeddingProvider))
		deps.Embedder = embedder
	}

	return deps
}

// Service assembles the investigation service over the given case store.
func (d Dependencies) Service(cs domain.CaseStore, logger *zap.Logger) *service.InvestigationService {
	return service.NewInvestigationService(cs, d.Embedder, d.Oracle, d.Knowledge, d.Workflow, d.Metrics, logger)
}

func loadKnowledge(logger *zap.Logger) *knowledge.Base {
	path := config.KnowledgePath()
	if path == "" {
		return knowledge.Default()
	}
	kb, err := knowledge.Load(path)
	if err != nil {
		logger.Warn("knowledge base load failed, using built-in", zap.String("path", path), zap.Error(err))
		return knowledge.Default()
	}
	logger.Info("knowledge base loaded", zap.String("path", path), zap.Int("conditions", len(kb.Conditions())))
	return kb
}

func workflowConfig() service.WorkflowConfig {
	cfg := service.DefaultWorkflowConfig()
	cfg.MaxRounds = config.MaxRounds()
	cfg.MinInteractionRounds = config.MinInteractionRounds()
	cfg.MaxInteractionRounds = config.MaxInteractionRounds()
	cfg.ConfidenceThreshold = config.ConfidenceThreshold()
	cfg.LowConfidenceThreshold = config.LowConfidenceThreshold()
	cfg.CostBudget = config.CostBudget()
	cfg.MaxCandidates = config.MaxCandidates()
	return cfg
}
