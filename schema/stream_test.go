package schema

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPipe(t *testing.T) {
	sr, sw := Pipe[int](2)
	go func() {
		defer sw.Close()
		for i := 0; i < 5; i++ {
			sw.Send(i, nil)
		}
	}()

	chunks, err := ConcatStream(sr)
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, chunks)
}

func TestPipeError(t *testing.T) {
	sr, sw := Pipe[int](2)
	boom := errors.New("boom")
	go func() {
		defer sw.Close()
		sw.Send(1, nil)
		sw.Send(0, boom)
	}()

	chunks, err := ConcatStream(sr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1}, chunks)
}

func TestSendAfterReaderClosed(t *testing.T) {
	sr, sw := Pipe[int](0)
	sr.Close()
	assert.True(t, sw.Send(1, nil))
	sw.Close()
}

func TestStreamReaderFromArray(t *testing.T) {
	sr := StreamReaderFromArray([]string{"a", "b"})
	c, err := sr.Recv()
	assert.NoError(t, err)
	assert.Equal(t, "a", c)
	_, _ = sr.Recv()
	_, err = sr.Recv()
	assert.ErrorIs(t, err, io.EOF)
	sr.Close()
}

func TestStreamReaderWithConvert(t *testing.T) {
	sr := StreamReaderFromArray([]int{1, 2, 3, 4})
	conv := StreamReaderWithConvert(sr, func(i int) (string, error) {
		if i%2 == 0 {
			return "", ErrNoValue
		}
		return fmt.Sprintf("val_%d", i), nil
	})

	chunks, err := ConcatStream(conv)
	assert.NoError(t, err)
	assert.Equal(t, []string{"val_1", "val_3"}, chunks)
}

func TestGoStreamPanic(t *testing.T) {
	sr := GoStream[int](1, func(sw *StreamWriter[int]) {
		sw.Send(1, nil)
		panic("boom")
	})

	chunks, err := ConcatStream(sr)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "panic error: boom")
	assert.Equal(t, []int{1}, chunks)
}

func TestCopy(t *testing.T) {
	sr, sw := Pipe[int](0)
	go func() {
		defer sw.Close()
		for i := 0; i < 3; i++ {
			if sw.Send(i, nil) {
				return
			}
		}
	}()

	srs := sr.Copy(2)
	results := make([][]int, 2)
	var wg sync.WaitGroup
	for i, c := range srs {
		wg.Add(1)
		go func(i int, c *StreamReader[int]) {
			defer wg.Done()
			results[i], _ = ConcatStream(c)
		}(i, c)
	}
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2}, results[0])
	assert.Equal(t, []int{0, 1, 2}, results[1])

	_, err := srs[0].Recv()
	assert.ErrorIs(t, err, ErrRecvAfterClosed)
}

func TestCopyClosesSourceAfterAllCopies(t *testing.T) {
	sr, sw := Pipe[int](1)
	srs := sr.Copy(2)

	srs[0].Close()
	assert.False(t, sw.Send(1, nil))
	v, err := srs[1].Recv()
	assert.NoError(t, err)
	assert.Equal(t, 1, v)

	srs[1].Close()
	assert.True(t, sw.Send(2, nil))
	sw.Close()
}

func TestCopyArray(t *testing.T) {
	sr := StreamReaderFromArray([]string{"a", "b"})
	_, _ = sr.Recv()

	srs := sr.Copy(3)
	assert.Len(t, srs, 3)
	for _, c := range srs {
		chunks, err := ConcatStream(c)
		assert.NoError(t, err)
		assert.Equal(t, []string{"b"}, chunks)
	}

	assert.Equal(t, []*StreamReader[string]{sr}, sr.Copy(1))
}
