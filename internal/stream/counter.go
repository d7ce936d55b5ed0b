package stream

import (
	"io"
	"sync/atomic"
)

// Counter считает байты, прочитанные через него. Size имеет смысл
// только после того, как поток дочитан до конца.
type Counter struct {
	r io.Reader
	n atomic.Int64
}

func NewCounter(r io.Reader) *Counter {
	return &Counter{r: r}
}

func (c *Counter) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n.Add(int64(n))
	}
	return n, err
}

func (c *Counter) Size() int64 {
	return c.n.Load()
}
