// Пакет stream — потоковые примитивы конвейера загрузки: размножение
// одного потока на несколько независимых читателей, подсчет размера
// и ожидание завершения потока.
package stream

import (
	"context"
	"io"
	"sync"
)

const (
	// DefaultHighWaterMark должен быть больше лимита чтения detect.ResolveMimeType,
	// иначе определение типа заблокирует остальные ветки.
	DefaultHighWaterMark = 64 * 1024
	defaultChunkSize     = 32 * 1024
)

type options struct {
	highWaterMark int
	chunkSize     int
}

type Option func(*options)

func WithHighWaterMark(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.highWaterMark = n
		}
	}
}

func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// Duplicate размножает src на n веток. Каждая ветка получает те же байты
// в том же порядке. Чтение src приостанавливается, пока хотя бы одна ветка
// выше highWaterMark, поэтому скорость определяется самым медленным читателем.
// Ветка, закрытая читателем, выбывает и больше не получает данных.
func Duplicate(ctx context.Context, src io.Reader, n int, opts ...Option) []*Branch {
	if n < 1 {
		panic("stream: duplicate count must be positive")
	}

	o := options{highWaterMark: DefaultHighWaterMark, chunkSize: defaultChunkSize}
	for _, opt := range opts {
		opt(&o)
	}

	branches := make([]*Branch, n)
	for i := range branches {
		branches[i] = newBranch(o.highWaterMark)
	}

	p := &pump{src: src, branches: branches, chunkSize: o.chunkSize}
	go p.run(ctx)

	return branches
}

type pump struct {
	src       io.Reader
	branches  []*Branch
	chunkSize int
}

func (p *pump) run(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() {
		p.abort(ctx.Err())
	})
	defer stop()

	buf := make([]byte, p.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			p.abort(err)
			return
		}

		n, err := p.src.Read(buf)
		if n > 0 {
			live := 0
			for _, b := range p.branches {
				if b.write(buf[:n]) {
					live++
				}
			}
			if live == 0 {
				return
			}
		}

		if err == io.EOF {
			for _, b := range p.branches {
				b.end()
			}
			return
		}
		if err != nil {
			p.abort(err)
			return
		}
	}
}

func (p *pump) abort(err error) {
	for _, b := range p.branches {
		b.abort(err)
	}
}

// Branch одна копия исходного потока
type Branch struct {
	mu   sync.Mutex
	cond *sync.Cond
	buf  []byte
	hwm  int

	// ended и errored различают нормальное окончание источника и его ошибку;
	// closed означает, что читатель отказался от ветки сам.
	ended   bool
	errored bool
	err     error
	closed  bool
}

func newBranch(hwm int) *Branch {
	b := &Branch{hwm: hwm}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *Branch) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		switch {
		case b.closed:
			return 0, io.ErrClosedPipe
		case b.errored:
			return 0, b.err
		case len(b.buf) > 0:
			n := copy(p, b.buf)
			b.buf = b.buf[n:]
			if len(b.buf) < b.hwm {
				b.cond.Broadcast()
			}
			return n, nil
		case b.ended:
			return 0, io.EOF
		}
		b.cond.Wait()
	}
}

// Close отключает ветку от источника. Это не ошибка источника.
func (b *Branch) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.buf = nil
	b.cond.Broadcast()
	return nil
}

// write блокируется, пока ветка выше highWaterMark. Возвращает false,
// если ветка больше не принимает данные.
func (b *Branch) write(chunk []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.errored {
		return false
	}

	b.buf = append(b.buf, chunk...)
	b.cond.Broadcast()

	for len(b.buf) >= b.hwm && !b.closed && !b.errored {
		b.cond.Wait()
	}
	return !b.closed && !b.errored
}

func (b *Branch) end() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.errored {
		return
	}
	b.ended = true
	b.cond.Broadcast()
}

func (b *Branch) abort(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ended || b.errored {
		return
	}
	b.errored = true
	b.err = err
	b.buf = nil
	b.cond.Broadcast()
}
