package body

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, r io.Reader, bufSize int) []byte {
	t.Helper()
	var out bytes.Buffer
	buf := make([]byte, bufSize)
	for {
		n, err := r.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			return out.Bytes()
		}
		require.NoError(t, err)
	}
}

func TestEncoder_ByteLayout(t *testing.T) {
	f := NewFormWithBoundary("XYZ")
	f.AddPart(Part{Name: "a", ContentType: "text/plain; charset=utf-8", Content: []byte("1")})

	r, err := f.Open()
	require.NoError(t, err)

	want := "--XYZ\r\n" +
		"Content-Disposition: form-data; name=\"a\"\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"1" +
		"\r\n--XYZ--\r\n"
	assert.Equal(t, want, string(drain(t, r, 4096)))
}

func TestEncoder_SeparatorBetweenParts(t *testing.T) {
	f := NewFormWithBoundary("XYZ")
	f.AddPart(NewTextPart("a", "1"))
	f.AddPart(NewTextPart("b", "2"))

	r, err := f.Open()
	require.NoError(t, err)
	got := string(drain(t, r, 4096))

	// The leading CRLF is omitted only before the very first part.
	assert.True(t, bytes.HasPrefix([]byte(got), []byte("--XYZ\r\n")))
	assert.Contains(t, got, "1\r\n--XYZ\r\nContent-Disposition: form-data; name=\"b\"")
	assert.True(t, bytes.HasSuffix([]byte(got), []byte("\r\n--XYZ--\r\n")))
}

func TestEncoder_ZeroPartsYieldEmptyBody(t *testing.T) {
	f := NewForm()
	r, err := f.Open()
	require.NoError(t, err)

	assert.Empty(t, drain(t, r, 64))
	assert.True(t, f.Empty())
}

func TestEncoder_EmptyContentPartEmitsHeaderOnly(t *testing.T) {
	f := NewFormWithBoundary("B")
	f.AddPart(Part{Name: "empty", ContentType: "text/plain; charset=utf-8"})

	r, err := f.Open()
	require.NoError(t, err)

	want := "--B\r\n" +
		"Content-Disposition: form-data; name=\"empty\"\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"\r\n--B--\r\n"
	assert.Equal(t, want, string(drain(t, r, 7)))
}

func TestEncoder_EOFIsSticky(t *testing.T) {
	f := NewFormWithBoundary("B")
	f.AddPart(NewTextPart("a", "1"))

	r, err := f.Open()
	require.NoError(t, err)
	drain(t, r, 4096)

	buf := make([]byte, 16)
	for i := 0; i < 3; i++ {
		n, err := r.Read(buf)
		assert.Zero(t, n)
		assert.Equal(t, io.EOF, err)
	}
}

func TestEncoder_SmallPullsEqualLargePull(t *testing.T) {
	pending := NewPendingPart(func(ctx context.Context) []Part {
		return []Part{
			NewFilePart("f1", "one.bin", "", bytes.Repeat([]byte{0xAB}, 100)),
			NewFilePart("f2", "two.txt", "text/plain", []byte("second file contents")),
		}
	})

	build := func() *Form {
		f := NewFormWithBoundary("pull-test")
		f.AddValue("a", "1")
		f.AddPending(pending)
		f.Resolve(context.Background())
		return f
	}

	small, err := build().Open()
	require.NoError(t, err)
	large, err := build().Open()
	require.NoError(t, err)

	assert.Equal(t, drain(t, large, 4096), drain(t, small, 16))
}

func TestEncoder_RoundTripThroughMultipartReader(t *testing.T) {
	f := NewForm()
	f.AddValue("query", "param value")
	f.AddPart(NewTextPart("field", "hello"))
	f.AddPart(NewFilePart("upload", "data.bin", "application/octet-stream", []byte{0, 1, 2, 255}))

	r, err := f.Open()
	require.NoError(t, err)

	mr := multipart.NewReader(r, f.Boundary())

	p, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "query", p.FormName())
	got, _ := io.ReadAll(p)
	assert.Equal(t, "param value", string(got))

	p, err = mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "field", p.FormName())
	assert.Equal(t, "text/plain; charset=utf-8", p.Header.Get("Content-Type"))

	p, err = mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "upload", p.FormName())
	assert.Equal(t, "data.bin", p.FileName())
	got, _ = io.ReadAll(p)
	assert.Equal(t, []byte{0, 1, 2, 255}, got)

	_, err = mr.NextPart()
	assert.Equal(t, io.EOF, err)
}

func TestEscapeQuoted(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{`quo"te`, "quo%22te"},
		{"line\r\nbreak", "line%0D%0Abreak"},
		{"percent % stays", "percent % stays"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeQuoted(tt.in))
	}
}

func TestPendingPart_EvaluatedOnce(t *testing.T) {
	calls := 0
	p := NewPendingPart(func(ctx context.Context) []Part {
		calls++
		return []Part{NewTextPart("x", "y")}
	})

	first := p.Resolve(context.Background())
	second := p.Resolve(context.Background())

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestPendingPart_ConcurrentResolve(t *testing.T) {
	calls := 0
	p := NewPendingPart(func(ctx context.Context) []Part {
		calls++
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Resolve(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, calls)
}

func TestForm_PendingYieldingZeroPartsIsSkipped(t *testing.T) {
	f := NewFormWithBoundary("B")
	f.AddPart(NewTextPart("a", "1"))
	f.AddPending(NewPendingPart(func(ctx context.Context) []Part { return nil }))
	f.AddPart(NewTextPart("b", "2"))
	f.Resolve(context.Background())

	r, err := f.Open()
	require.NoError(t, err)

	mr := multipart.NewReader(r, "B")
	names := []string{}
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, p.FormName())
	}
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestForm_OpenFailsOnUnresolvedPending(t *testing.T) {
	f := NewForm()
	f.AddPending(NewPendingPart(func(ctx context.Context) []Part { return nil }))

	_, err := f.Open()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unresolved")
}
