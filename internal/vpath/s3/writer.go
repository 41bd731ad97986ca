package s3

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/gofm/gofm/internal/s3client"
)

// streamWriter pipes written bytes straight into an upload, so a large
// object never has to be resident in memory. The object becomes visible
// when Close returns.
type streamWriter struct {
	pw   *io.PipeWriter
	done chan error
}

func newStreamWriter(ctx context.Context, p s3Path) *streamWriter {
	pr, pw := io.Pipe()
	w := &streamWriter{pw: pw, done: make(chan error, 1)}
	go func() {
		err := p.client().PutObjectStream(ctx, p.key, pr)
		pr.CloseWithError(err)
		w.done <- err
	}()
	return w
}

func (w *streamWriter) Write(data []byte) (int, error) {
	return w.pw.Write(data)
}

func (w *streamWriter) Close() error {
	w.pw.Close()
	return <-w.done
}

// appendWriter emulates append on a backend with no in-place editing: the
// existing object is buffered up front and the whole body is re-uploaded
// on Close.
type appendWriter struct {
	ctx    context.Context
	path   s3Path
	buf    bytes.Buffer
	closed bool
}

func newAppendWriter(ctx context.Context, p s3Path) (*appendWriter, error) {
	w := &appendWriter{ctx: ctx, path: p}
	r, err := p.client().GetObjectStream(ctx, p.key)
	if err != nil {
		if !s3client.IsNotFound(err) {
			return nil, p.wrapErr(err)
		}
		return w, nil
	}
	defer r.Close()
	if _, err := io.Copy(&w.buf, r); err != nil {
		return nil, p.wrapErr(err)
	}
	return w, nil
}

func (w *appendWriter) Write(data []byte) (int, error) {
	if w.closed {
		return 0, errors.New("write on closed file")
	}
	return w.buf.Write(data)
}

func (w *appendWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.path.client().PutObjectStream(w.ctx, w.path.key, bytes.NewReader(w.buf.Bytes())); err != nil {
		return w.path.wrapErr(err)
	}
	return nil
}
