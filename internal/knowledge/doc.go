// Package knowledge derives retrieval documents from vault files.
//
// An uploaded file is text-extracted, split into fixed-size overlapping
// chunks, and persisted as one KnowledgeDocument plus its KnowledgeChunks
// in the owning tenant's store. Deleting the file reverses the derivation,
// children before parent, so a chunk can never outlive its document.
package knowledge
