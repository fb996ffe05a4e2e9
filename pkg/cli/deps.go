package cli

import (
	"context"

	"github.com/caresim-lab/caseflow/pkg/cli/config"
	"github.com/caresim-lab/caseflow/pkg/service/inference"
	"github.com/caresim-lab/caseflow/pkg/service/retriever"
	"github.com/caresim-lab/caseflow/pkg/stage"
	"github.com/caresim-lab/caseflow/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// buildDeps assembles the stage collaborators shared by serve and run.
// The Gemini client is mandatory for text generation; localEmbedder swaps
// the embedding calls for the deterministic in-process embedder so the
// knowledge base works without embedding API quota.
func buildDeps(ctx context.Context, geminiCfg *config.Gemini, visionCfg *config.Vision, appCfg *config.AppConfig, localEmbedder bool) (stage.Deps, error) {
	var deps stage.Deps

	if err := appCfg.Load(); err != nil {
		return deps, err
	}
	pipelineCfg, err := appCfg.ToPipelineConfig()
	if err != nil {
		return deps, err
	}

	llm, err := geminiCfg.Configure(ctx, pipelineCfg.Params)
	if err != nil {
		return deps, err
	}
	if llm == nil {
		return deps, goerr.New("gemini project is required (--gemini-project)")
	}

	infClient, err := inference.New(llm)
	if err != nil {
		return deps, goerr.Wrap(err, "failed to create inference client")
	}

	var embedder retriever.Embedder
	if localEmbedder {
		embedder = retriever.NewHashEmbedder()
	} else {
		embedder, err = retriever.NewLLMEmbedder(llm)
		if err != nil {
			return deps, goerr.Wrap(err, "failed to create embedder")
		}
	}

	docs := appCfg.KnowledgeDocuments()
	kb, err := retriever.New(ctx, embedder, docs)
	if err != nil {
		return deps, goerr.Wrap(err, "failed to build knowledge retriever")
	}
	logging.Default().Info("Knowledge base indexed", "documents", len(docs), "local_embedder", localEmbedder)

	visionClient, err := visionCfg.Configure()
	if err != nil {
		return deps, goerr.Wrap(err, "failed to create vision classifier")
	}

	deps = stage.Deps{
		Inference: infClient,
		Retriever: kb,
		Vision:    visionClient,
		Config:    pipelineCfg,
	}
	return deps, nil
}
