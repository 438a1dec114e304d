// Package protocol owns the line transport wire contract and its error taxonomy.
//
// Ownership boundary:
// - frame sizing and line encoding (frame)
// - message segmentation (segment)
// - single-slot ack correlation (ack)
// - single-flight send orchestration (session)
package protocol
