package sessionstore

import (
	"bytes"
	"sync"
)

var readerPool = sync.Pool{
	New: func() any {
		return bytes.NewReader(nil)
	},
}

var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// getBuffer returns an empty buffer from the pool.
func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer wipes the buffer's content and returns it to the pool, so
// encoded session data does not linger in pooled memory.
func PutBuffer(buf *bytes.Buffer) {
	b := buf.Bytes()
	clear(b)
	buf.Reset()
	bufferPool.Put(buf)
}

func getReader(data []byte) *bytes.Reader {
	reader := readerPool.Get().(*bytes.Reader)
	reader.Reset(data)
	return reader
}

func putReader(reader *bytes.Reader) {
	reader.Reset(nil)
	readerPool.Put(reader)
}
