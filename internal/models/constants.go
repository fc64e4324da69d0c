package models

const (
	SourceKey        = "source"
	ContextSeparator = "\n\n---\n\n"

	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultTopK         = 5
	DefaultContextLen   = 4096
	DefaultCharsPerTok  = 3

	DefaultStorePath      = "chroma_db"
	DefaultCollectionName = "analyst_assistant_collection"
)

// Fixed user-facing messages.
const (
	NoRelevantInfoMessage   = "I could not find any relevant information in the uploaded documents to answer your question."
	DocumentNotFoundMessage = "Could not find a document named '%s' in the database."
	DocumentTooLargeMessage = "The document is too large to summarize with the current method."
	UnsupportedFileMessage  = "Unsupported file type: %s"
	CompositeQueryTemplate  = "Considering the previous question was '%s', now answer this: %s"
)

// Prompt templates use f-string placeholders and are sent to the model as-is.
var (
	QAPromptTemplate = `
### Instruction:
You are a helpful AI assistant for data analysis. Use the following retrieved context to answer the user's question.
If you don't know the answer, just say that you don't know. Don't try to make up an answer.
Provide a concise and factual answer based *only* on the provided context.

### Context:
{context}

### User's Question:
{question}

### Answer:
`

	NextStepsPromptTemplate = `
### Instruction:
You are a helpful AI analyst. Based on the user's original question and the answer provided, suggest 3 relevant, insightful, and actionable follow-up questions that the user might want to ask. The questions should be directly answerable from the context of a financial or data analysis document. Present them as a numbered list. Do not add any extra text or commentary.

### Original Question:
{question}

### Provided Answer:
{answer}

### Suggested Follow-up Questions:
`

	SummaryPromptTemplate = `
            ### Instruction:
            You are a helpful AI assistant. Based on the following document text, please provide a concise, bullet-point summary of its key contents.

            ### Document Text:
            {full_text}

            ### Summary:
            `
)
