package conversation

// NoContentReply answers a grounded question when no document text is loaded.
const NoContentReply = "I don't have any document content to answer your question. Please upload some documents first."

// NotFoundPhrase is what the model is told to say when the documents do not
// contain the answer.
const NotFoundPhrase = "I cannot find this information in the uploaded documents"

func groundingPrompt(corpusText string) string {
	return `You are a helpful assistant that answers questions ONLY based on the provided document content.

IMPORTANT RULES:
1. Only use information from the provided document content below
2. If the answer is not in the document content, clearly state "` + NotFoundPhrase + `"
3. Always cite which document/page the information comes from when possible
4. Be accurate and don't make up information not present in the documents
5. If asked about something not in the documents, politely explain that you can only answer based on the uploaded documents

DOCUMENT CONTENT:
` + corpusText + `

Remember: Answer ONLY based on the above document content.`
}
