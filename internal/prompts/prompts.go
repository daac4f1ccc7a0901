// Package prompts carries the prompt templates used across the pipeline.
// Templates are plain values handed to components through configuration;
// nothing in this package is mutated at runtime.
package prompts

import (
	"fmt"
	"strings"
)

// Template is a prompt with named {field} placeholders. Fields lists every
// placeholder the template requires; Render fails when one is missing so a
// misconfigured run stops before any provider call.
type Template struct {
	ID     string
	Text   string
	Fields []string
}

// Render substitutes vals into the template. All required fields must be
// present; extra keys are ignored.
func (t Template) Render(vals map[string]string) (string, error) {
	out := t.Text
	for _, f := range t.Fields {
		v, ok := vals[f]
		if !ok {
			return "", fmt.Errorf("prompt %s: missing field %q", t.ID, f)
		}
		out = strings.ReplaceAll(out, "{"+f+"}", v)
	}
	return out, nil
}

// Lookup resolves a template id across all catalogs in this package.
func Lookup(id string) (Template, error) {
	for _, t := range all {
		if t.ID == id {
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("unknown prompt template %q", id)
}

var all []Template

func register(t Template) Template {
	all = append(all, t)
	return t
}

var questionFields = []string{"question", "background", "resolution_criteria", "date_begin", "date_end"}

// SearchQuery0 asks for sub-questions before emitting queries.
var SearchQuery0 = register(Template{
	ID: "search-query-0",
	Text: `I will provide you with a forecasting question and the background information for the question. I will then ask you to generate short search queries (up to {max_words} words each) that I'll use to find articles on Google News to help answer the question.

Question:
{question}

Question Background:
{background}

Today's date: {date_begin}
Question close date: {date_end}

You must generate this exact amount of queries: {num_keywords}

Start off by writing down sub-questions. Then use your sub-questions to help steer the search queries you produce.

Your response should take the following structure:
Thoughts:
{{ Insert your thinking here. }}
Search Queries:
{{ Insert the queries here. Use semicolons to separate the queries. }}`,
	Fields: []string{"question", "background", "date_begin", "date_end", "num_keywords", "max_words"},
})

// SearchQuery1 is the direct variant without the sub-question step.
var SearchQuery1 = register(Template{
	ID: "search-query-1",
	Text: `I will provide you with a forecasting question and the background information for the question.

Question:
{question}

Question Background:
{background}

Today's date: {date_begin}
Question close date: {date_end}

Task:
- Generate brief search queries (up to {max_words} words each) to gather information on Google that could influence the forecast.

You must generate this exact amount of queries: {num_keywords}

Your response should take the following structure:
Thoughts:
{{ Insert your thinking here. }}
Search Queries:
{{ Insert the queries here. Use semicolons to separate the queries. }}`,
	Fields: []string{"question", "background", "date_begin", "date_end", "num_keywords", "max_words"},
})

// Relevance asks for a 1-6 rating of an article against the question.
var Relevance = register(Template{
	ID: "relevance-0",
	Text: `Please consider the following forecasting question and its background information.
After that, I will give you a news article and ask you to rate its relevance with respect to the forecasting question.

Question:
{question}

Question Background:
{background}

Question Resolution Criteria:
{resolution_criteria}

Article:
{article}

Please rate the relevance of the article to the question, at the scale of 1-6
1 -- irrelevant
2 -- slightly relevant
3 -- somewhat relevant
4 -- relevant
5 -- highly relevant
6 -- most relevant

Guidelines:
- You don't need to access any external sources. Just consider the information provided.
- Focus on the content of the article, not the title.
- If the text content is an error message about JavaScript, paywall, cookies or other technical issues, output a score of 1.

Your response should look like the following:
Thoughts: {{ insert your thinking }}
Rating: {{ insert your rating }}`,
	Fields: []string{"question", "background", "resolution_criteria", "article"},
})

// Summarization condenses one article while keeping question-relevant facts.
var Summarization = register(Template{
	ID: "summarization-0",
	Text: `Summarize the article below, ensuring to include details pertinent to the subsequent question.

Question: {question}
Question Background: {background}

Article:
---
{article}
---`,
	Fields: []string{"question", "background", "article"},
})

// SummarizationBullets is the bullet-point variant preferred by forecasters.
var SummarizationBullets = register(Template{
	ID: "summarization-bullets",
	Text: `I will present a forecasting question and a related article.

Question: {question}
Question Background: {background}

Article:
---
{article}
---

A forecaster prefers a list of bullet points containing facts, observations, details, analysis, etc., over reading a full article.

Your task is to distill the article as a list of bullet points that would help a forecaster in his deliberation.`,
	Fields: []string{"question", "background", "article"},
})

// ScratchPad0 is the reasons-for-and-against base forecaster prompt.
var ScratchPad0 = register(Template{
	ID: "scratchpad-0",
	Text: `Question:
{question}

Question Background:
{background}

Resolution Criteria:
{resolution_criteria}

Today's date: {date_begin}
Question close date: {date_end}

We have retrieved the following information for this question:
{retrieved_info}


Instructions:
1. Provide at least 3 reasons why the answer might be no.
{{ Insert your thoughts }}

2. Provide at least 3 reasons why the answer might be yes.
{{ Insert your thoughts }}

3. Rate the strength of each of the reasons given in the last two responses. Think like a superforecaster (e.g. Nate Silver).
{{ Insert your rating of the strength of each reason }}

4. Aggregate your considerations.
{{ Insert your aggregated considerations }}

5. Output your answer (a number between 0 and 1) with an asterisk at the beginning and end of the decimal.
{{ Insert your answer }}`,
	Fields: append(questionFields, "retrieved_info"),
})

// ScratchPad1 additionally asks for known facts before the pro/con lists.
var ScratchPad1 = register(Template{
	ID: "scratchpad-1",
	Text: `Question:
{question}

Question Background:
{background}

Resolution Criteria:
{resolution_criteria}

Today's date: {date_begin}
Question close date: {date_end}

We have retrieved the following information for this question:
{retrieved_info}


Instructions:
1. Write down any additional relevant information that is not included above. This should be specific facts that you already know the answer to, rather than information that needs to be looked up.
{{ Insert additional information }}

2. Provide at least 3 reasons why the answer might be no.
{{ Insert your thoughts }}

3. Provide at least 3 reasons why the answer might be yes.
{{ Insert your thoughts }}

4. Rate the strength of each of the reasons given in the last two responses. Think like a superforecaster (e.g. Nate Silver).
{{ Insert your rating of the strength of each reason }}

5. Aggregate your considerations.
{{ Insert your aggregated considerations }}

6. Output your answer (a number between 0 and 1) with an asterisk at the beginning and end of the decimal.
{{ Insert your answer }}`,
	Fields: append(questionFields, "retrieved_info"),
})

// ScratchPad2 is the compact step-by-step variant.
var ScratchPad2 = register(Template{
	ID: "scratchpad-2",
	Text: `Question:
{question}

Question Background:
{background}

Resolution Criteria:
{resolution_criteria}

Today's date: {date_begin}
Question close date: {date_end}

We have retrieved the following information for this question:
{retrieved_info}


Think step by step: {{ Insert your step by step consideration }}
Aggregating considerations: {{ Aggregate your considerations }}
Answer: {{ Output your answer (a number between 0 and 1) with an asterisk at the beginning and end of the decimal }}`,
	Fields: append(questionFields, "retrieved_info"),
})

// ScratchPadTokens elicits a vocabulary token instead of a probability.
var ScratchPadTokens = register(Template{
	ID: "scratchpad-tokens",
	Text: `Question:
{question}

Question Background:
{background}

Resolution Criteria:
{resolution_criteria}

Today's date: {date_begin}
Question close date: {date_end}

We have retrieved the following information for this question:
{retrieved_info}

Think step by step: {{ Insert your step by step consideration }}
Aggregating considerations: {{ Aggregate your considerations }}
Answer: {{ Output one of these: "No", "Extremely Unlikely", Very Unlikely", "Unlikely", "Slightly Unlikely", "Slightly Likely", "Likely", "Very Likely", "Extremely Likely", "Yes" }}

Note: Here are how the words map to probabilities
No (0%-10%)
Extremely Unlikely (10%-20%)
Very Unlikely  (20%-30%)
Unlikely (30%-40%)
Slightly Unlikely (40%-50%)
Slightly Likely (50%-60%)
Likely (60%-70%)
Very Likely (70%-80%)
Extremely Likely (80%-90%)
Yes (90%-100%)`,
	Fields: append(questionFields, "retrieved_info"),
})

// Ensemble is the second-order aggregation prompt fed every base reasoning.
var Ensemble = register(Template{
	ID: "ensemble-0",
	Text: `I need your assistance with making a forecast. Here is the question and its metadata.
Question: {question}

Background: {background}

Resolution criteria: {resolution_criteria}

Today's date: {date_begin}
Question close date: {date_end}

I have retrieved the following information about this question.
Retrieved Info:
{retrieved_info}

In addition, I have generated a collection of other responses and reasonings from other forecasters:
{base_reasonings}

Your goal is to aggregate the information and make a final prediction.

Instructions:
1. Provide reasons why the answer might be no.
{{ Insert your thoughts here }}

2. Provide reasons why the answer might be yes.
{{ Insert your thoughts here }}

3. Aggregate your considerations.
{{ Insert your aggregated considerations here }}

4. Output your prediction (a number between 0 and 1) with an asterisk at the beginning and end of the decimal.
{{ Insert the probability here }}`,
	Fields: append(questionFields, "retrieved_info", "base_reasonings"),
})

// Alignment rates whether a reasoning alone supports its own prediction.
var Alignment = register(Template{
	ID: "alignment-0",
	Text: `Question:
{question}

Background:
{background}

Resolution Criteria:
{resolution_criteria}

Model's Thinking:
{reasoning}

Task:
Evaluate the alignment between the model's thinking and its prediction. If someone were given the reasoning alone (without the prediction), would they likely arrive at the same prediction?

Alignment Ratings:
1 — Very Not Aligned
2 — Not Aligned
3 — Slightly Not Aligned
4 — Slightly Aligned
5 — Aligned
6 — Very Aligned

Please use these ratings to indicate the degree of alignment between the model's reasoning and its prediction.

Note: If the response indicates that this question is old or it's already been resolved, give it an alignment rating of 1.

I want your answer to follow this format:

Thinking: {{ insert your thinking here }}
Rating: {{ insert your alignment rating here (a number between 1 and 6) }}`,
	Fields: []string{"question", "background", "resolution_criteria", "reasoning"},
})
