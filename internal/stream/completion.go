package stream

import (
	"context"
	"io"
	"sync"
)

// Completion результат, который устанавливается один раз.
// Первый сигнал побеждает, остальные игнорируются.
type Completion struct {
	once sync.Once
	done chan struct{}
	err  error
}

func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Settle возвращает true, если этот вызов установил результат
func (c *Completion) Settle(err error) bool {
	settled := false
	c.once.Do(func() {
		c.err = err
		close(c.done)
		settled = true
	})
	return settled
}

func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait ждет конца потока. Конец, закрытие и внешняя отмена дают nil.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Watched читатель, который сообщает о завершении потока в Completion
type Watched struct {
	r          io.Reader
	completion *Completion
}

// Watch оборачивает r. Сигнал cancel (может быть nil) завершает ожидание без ошибки.
func Watch(r io.Reader, cancel <-chan struct{}) *Watched {
	w := &Watched{r: r, completion: NewCompletion()}
	if cancel != nil {
		go func() {
			select {
			case <-cancel:
				w.completion.Settle(nil)
			case <-w.completion.Done():
			}
		}()
	}
	return w
}

func (w *Watched) Read(p []byte) (int, error) {
	n, err := w.r.Read(p)
	switch {
	case err == io.EOF:
		w.completion.Settle(nil)
	case err != nil:
		w.completion.Settle(err)
	}
	return n, err
}

func (w *Watched) Close() error {
	w.completion.Settle(nil)
	if c, ok := w.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (w *Watched) Completion() *Completion {
	return w.completion
}
