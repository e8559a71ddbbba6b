package embeddings

import "github.com/hindsightdb/hindsight/internal/errs"

func errEmptyInput(what string) error {
	return errs.New(errs.KindInvalidInput, what+" cannot be empty")
}

func errEmbeddingFailed(cause error) error {
	return errs.Wrap(errs.KindTransient, "embedding generation failed", cause)
}
