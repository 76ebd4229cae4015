// Package outputlog defines a simple protocol to record several byte streams,
// chunk by chunk, into one stream.
//
// # Overview
//
// Goals:
//
//  1. Preserve the exact bytes of every chunk, binary data included
//  2. Keep the origin of each chunk (for example stdout or stderr)
//  3. Keep when each chunk was seen
//  4. Keep chunk boundaries, so a replay reproduces the original interleaving
//  5. Detect a truncated final frame
//
// # Format
//
// Each chunk is one frame:
//
//	stream timestamp length: content\n
//
// Fields:
//
//   - stream: matches [a-zA-Z0-9_./-]{1,64}, for example stdout or stderr.
//   - timestamp: UTC, 2006-01-02T15:04:05.000000000Z when written. Readers
//     accept any RFC 3339 fraction.
//   - length: decimal byte length of content.
//   - ": ": literal separator.
//   - content: exactly length bytes; may contain newlines or any byte 0-255.
//   - "\n": frame terminator, always present, even when content ends in a newline.
//
// # Examples
//
// A chunk ending in a newline:
//
//	stdout 2025-01-07T12:34:56.789000000Z 12: Hello world\n\n
//
// A prompt without newline, then an error line:
//
//	stdout 2025-01-07T12:00:00.000000000Z 7: prompt>\n
//	stderr 2025-01-07T12:00:01.000000000Z 14: error message\n\n
package outputlog
