// Package prompts renders the instructions sent to the completion service.
// Each builder documents the JSON shape the reply is asked to take.
package prompts

import (
	"fmt"
	"strings"
)

// DefaultDocumentKind describes the corpus in the creation prompt.
const DefaultDocumentKind = "news articles"

const mergeRules = "The index should be the index of the topic in the list of topics.\n" +
	"The new topic should be a generalization of the two topics. Keep the name of the topic simple, try to generalize. " +
	"So if you merge topic 'A' and 'B' together, do not name the topic something like 'A and B'. Rather, find the common more general denominator.\n" +
	"In selecting the pair to merge, please merge the most similar, and most granular topics first. "

// Creation asks for {"topics": [...]} distilled from one chunk of documents.
func Creation(documents []string, kind string) string {
	if kind == "" {
		kind = DefaultDocumentKind
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your task will be to distill a list of topics from the following %s:\n\n", kind)
	b.WriteString(" DOCUMENT: " + strings.Join(documents, "\n DOCUMENT: ") + "\n\n")
	b.WriteString(`Your response should be a JSON in the following format: {"topics": ["topic1", "topic2", "topic3"]}` + "\n")
	b.WriteString("Topics should not be too specific, but also not too general. For example, 'food' is too general, but 'lemon cake' is too specific.\n")
	b.WriteString("A topic does not need to be present in multiple documents. But do not create more topics than there are documents, " +
		"so if there are N documents, you should at most create N topics.\n")
	return b.String()
}

func enumerate(b *strings.Builder, topics []string) {
	lines := make([]string, len(topics))
	for i, t := range topics {
		lines[i] = fmt.Sprintf("#%d: %s", i, t)
	}
	b.WriteString(strings.Join(lines, "\n") + "\n\n")
}

// Elimination asks for {"topic_pair": [i, j], "new_topic": "..."}.
func Elimination(topics []string) string {
	var b strings.Builder
	b.WriteString("Your task will be to merge a pair of topics out of the following topics because the current topics are too granular:\n\n")
	enumerate(&b, topics)
	b.WriteString(`Your response should be a JSON in the following format: {"topic_pair": [idx1, idx2], "new_topic": "new_topic"}` + "\n with idx1, idx2 integers. ")
	b.WriteString(mergeRules)
	b.WriteString("If you encounter a topic that is too general (e.g., 'A and B' without A and B having a strong relationship), " +
		"merge it with the most appropriate and similar topic to create a more specific topic instead of generalizing.")
	return b.String()
}

// WeightedElimination is Elimination with, per topic, the number of origin
// topics it already absorbed. weights must be parallel to topics.
func WeightedElimination(topics []string, weights []int) string {
	var b strings.Builder
	b.WriteString("Your task will be to merge a pair of topics out of the following topics because the current topics are too granular:\n\n")
	lines := make([]string, len(topics))
	for i, t := range topics {
		w := 1
		if i < len(weights) {
			w = weights[i]
		}
		lines[i] = fmt.Sprintf("#%d: %s, weight: %d", i, t, w)
	}
	b.WriteString(strings.Join(lines, "\n") + "\n\n")
	b.WriteString(`Your response should be a JSON in the following format: {"topic_pair": [idx1, idx2], "new_topic": "new_topic"}` + "\n with idx1, idx2 integers. ")
	b.WriteString(mergeRules)
	b.WriteString("The process of merging topics is iterative. You have already merged some topics. Thus, each topic has a 'weight', " +
		"this weight counts how many original topics have been merged into the topic. The weight is a measure of how general the topic is. " +
		"The higher the weight, the more general the topic. When merging topics, please merge the topics with the lowest weight first, as these are too granular.")
	return b.String()
}

func combinationHeader(b *strings.Builder, topics []string) {
	b.WriteString("Your task will be to distill a list of core topics from the following topics:\n\n")
	b.WriteString(" TOPIC: " + strings.Join(topics, "\n TOPIC: ") + "\n\n")
	b.WriteString(`Your response should be a JSON in the following format: {"topics": ["topic1", "topic2", "topic3"]}` + "\n")
	b.WriteString("Remove duplicate topics and merge topics that are too general. Merge topics together that are too specific. " +
		"For example, 'food' might be too general, but 'lemon cake' might be too specific. ")
}

// Combination asks for {"topics": [...]} of about n core topics.
func Combination(topics []string, n int) string {
	var b strings.Builder
	combinationHeader(&b, topics)
	fmt.Fprintf(&b, "In the end, try to arrive at a list of about %d topics.", n)
	return b.String()
}

// CombinationNoPrior leaves the number of core topics to the service.
func CombinationNoPrior(topics []string) string {
	var b strings.Builder
	combinationHeader(&b, topics)
	b.WriteString("Arrive at a reasonable amount of core topics, whatever best suits the data.")
	return b.String()
}

// Classification asks for {"topic": idx} for one document.
func Classification(document string, topics []string) string {
	var b strings.Builder
	b.WriteString("Your task will be to classify the following document into one of the following topics:\n\n")
	fmt.Fprintf(&b, "DOCUMENT: %s\n\n", document)
	enumerate(&b, topics)
	b.WriteString(`Your response should be a JSON in the following format: {"topic": idx} with idx integer.` + "\n")
	b.WriteString("The index should be the index of the topic in the list of topics.")
	return b.String()
}

// Classifications builds one classification prompt per document.
func Classifications(documents []string, topics []string) []string {
	out := make([]string, len(documents))
	for i, doc := range documents {
		out[i] = Classification(doc, topics)
	}
	return out
}

// Creations builds one creation prompt per chunk.
func Creations(chunks [][]string, kind string) []string {
	out := make([]string, len(chunks))
	for i, docs := range chunks {
		out[i] = Creation(docs, kind)
	}
	return out
}
