package llmtopics

import "errors"

var (
	// ErrNoDocuments is returned when FitTransform receives an empty corpus.
	ErrNoDocuments = errors.New("no documents to fit")

	// ErrNoTopics is returned when topic creation yields no usable topic,
	// typically because every creation request failed.
	ErrNoTopics = errors.New("topic creation produced no topics")
)
