package schema

/*
 * stream.go - 流式输出的读写原语
 *
 * 核心组件：
 *   - StreamReader / StreamWriter: 单生产者单消费者的流
 *   - Pipe: 创建一对读写端
 *   - StreamReaderFromArray: 由数组构造流，常用于把同步结果包装成单块流
 *   - StreamReaderWithConvert: 逐块类型转换，可用 ErrNoValue 过滤
 *   - ConcatStream: 读取并收集整个流
 *   - StreamReader.Copy: 把一个流分发给多个独立消费者
 *
 * 与其他文件关系：
 *   - compose 包中所有 Callable 的 Stream 方法返回 *StreamReader[any]
 */

import (
	"errors"
	"io"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/favbox/chainkit/internal/safe"
)

// ====== 公开 API ======

// Pipe 创建指定容量的流，返回流读取器和流写入器。
//
// 示例:
//
//	sr, sw := schema.Pipe[string](3)
//	go func() {
//		defer sw.Close()
//		for i := 0; i < 10; i++ {
//			sw.Send(strconv.Itoa(i), nil)
//		}
//	}()
//
//	defer sr.Close()
//	for {
//		chunk, err := sr.Recv()
//		if errors.Is(err, io.EOF) {
//			break
//		}
//		fmt.Println(chunk)
//	}
func Pipe[T any](cap int) (*StreamReader[T], *StreamWriter[T]) {
	stm := newStream[T](cap)
	return &StreamReader[T]{typ: readerTypeStream, st: stm}, &StreamWriter[T]{stm: stm}
}

// StreamReaderFromArray 从给定数组创建流读取器。
func StreamReaderFromArray[T any](arr []T) *StreamReader[T] {
	return &StreamReader[T]{typ: readerTypeArray, ar: &arrayReader[T]{arr: arr}}
}

// StreamReaderWithConvert 将流读取器转换为另一种类型的流读取器。
// convert 返回 ErrNoValue 时跳过该数据块。
//
// 示例：
//
//	intReader := StreamReaderFromArray([]int{1, 2, 3})
//	stringReader := StreamReaderWithConvert(intReader, func(i int) (string, error) {
//		return fmt.Sprintf("val_%d", i), nil
//	})
//	defer stringReader.Close()
func StreamReaderWithConvert[T, D any](sr *StreamReader[T], convert func(T) (D, error)) *StreamReader[D] {
	return &StreamReader[D]{
		typ: readerTypeWithConvert,
		srw: &streamReaderWithConvert[D]{
			recvFn: func() (D, error) {
				for {
					chunk, err := sr.Recv()
					if err != nil {
						var d D
						return d, err
					}

					d, err := convert(chunk)
					if err == nil || !errors.Is(err, ErrNoValue) {
						return d, err
					}
				}
			},
			closeFn: sr.Close,
		},
	}
}

// ConcatStream 读取流中全部数据块并关闭流。
// 遇到非 io.EOF 错误时立即返回该错误。
func ConcatStream[T any](sr *StreamReader[T]) ([]T, error) {
	defer sr.Close()

	var chunks []T
	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
}

// ErrNoValue 用于 StreamReaderWithConvert 中跳过流数据项。
// 请勿在其他情况下使用。
var ErrNoValue = errors.New("no value")

// ErrRecvAfterClosed 副本关闭后继续 Recv 时返回。
var ErrRecvAfterClosed = errors.New("recv after stream closed")

// ====== 核心类型 ======

// StreamReader 流数据接收器。
// 使用 Recv 读取直到 io.EOF，使用完毕后必须 Close。
type StreamReader[T any] struct {
	typ readerType

	st  *stream[T]
	ar  *arrayReader[T]
	srw *streamReaderWithConvert[T]
	csr *childStreamReader[T]
}

// StreamWriter 流数据发送器。
type StreamWriter[T any] struct {
	stm *stream[T]
}

// Recv 从流中接收数据。
func (sr *StreamReader[T]) Recv() (T, error) {
	switch sr.typ {
	case readerTypeStream:
		return sr.st.recv()
	case readerTypeArray:
		return sr.ar.recv()
	case readerTypeWithConvert:
		return sr.srw.recvFn()
	case readerTypeChild:
		return sr.csr.recv()
	default:
		panic("impossible")
	}
}

// Close 关闭流读取器，通知发送方停止发送。只应调用一次。
func (sr *StreamReader[T]) Close() {
	switch sr.typ {
	case readerTypeStream:
		sr.st.closeRecv()
	case readerTypeArray:
	case readerTypeWithConvert:
		sr.srw.closeFn()
	case readerTypeChild:
		sr.csr.close()
	default:
		panic("impossible")
	}
}

// Copy 把流读取器复制为 n 个互相独立的副本，各副本都能读到完整的剩余数据。
// 复制后原读取器不可再用；所有副本都关闭后原读取器才被关闭。
//
// 示例:
//
//	srs := sr.Copy(2)
//	go consume(srs[1])
//	defer srs[0].Close()
func (sr *StreamReader[T]) Copy(n int) []*StreamReader[T] {
	if n < 2 {
		return []*StreamReader[T]{sr}
	}

	if sr.typ == readerTypeArray {
		ret := make([]*StreamReader[T], n)
		for i := range ret {
			ret[i] = &StreamReader[T]{typ: readerTypeArray, ar: &arrayReader[T]{arr: sr.ar.arr, index: sr.ar.index}}
		}
		return ret
	}

	return copyStreamReaders(sr, n)
}

// Send 向流中发送数据，返回流是否已被读取方关闭。
func (sw *StreamWriter[T]) Send(chunk T, err error) (closed bool) {
	return sw.stm.send(chunk, err)
}

// Close 关闭流的发送端，读取方随后收到 io.EOF。
func (sw *StreamWriter[T]) Close() {
	sw.stm.closeSend()
}

// GoStream 在新 goroutine 中运行 produce 并把其输出写入返回的流。
// produce 中的 panic 被转换为流中的错误。
func GoStream[T any](cap int, produce func(sw *StreamWriter[T])) *StreamReader[T] {
	sr, sw := Pipe[T](cap)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				var t T
				_ = sw.Send(t, safe.NewPanicErr(p, debug.Stack()))
			}
			sw.Close()
		}()

		produce(sw)
	}()
	return sr
}

// ====== 内部实现 ======

type readerType int

const (
	readerTypeStream readerType = iota
	readerTypeArray
	readerTypeWithConvert
	readerTypeChild
)

// stream 基于 channel 的底层流，支持 1 个发送者和 1 个接收者。
type stream[T any] struct {
	items  chan streamItem[T]
	closed chan struct{}
}

type streamItem[T any] struct {
	chunk T
	err   error
}

func newStream[T any](cap int) *stream[T] {
	return &stream[T]{
		items:  make(chan streamItem[T], cap),
		closed: make(chan struct{}),
	}
}

func (s *stream[T]) recv() (chunk T, err error) {
	item, ok := <-s.items
	if !ok {
		item.err = io.EOF
	}
	return item.chunk, item.err
}

func (s *stream[T]) send(chunk T, err error) (closed bool) {
	select {
	case <-s.closed:
		return true
	default:
	}

	select {
	case <-s.closed:
		return true
	case s.items <- streamItem[T]{chunk, err}:
		return false
	}
}

func (s *stream[T]) closeSend() {
	close(s.items)
}

func (s *stream[T]) closeRecv() {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
}

type arrayReader[T any] struct {
	arr   []T
	index int
}

func (ar *arrayReader[T]) recv() (T, error) {
	if ar.index < len(ar.arr) {
		ret := ar.arr[ar.index]
		ar.index++
		return ret, nil
	}

	var t T
	return t, io.EOF
}

type streamReaderWithConvert[T any] struct {
	recvFn  func() (T, error)
	closeFn func()
}

// ====== 副本 ======

// parentStreamReader 持有原读取器，把读到的数据块挂到共享链表上供各副本读取。
type parentStreamReader[T any] struct {
	sr *StreamReader[T]

	// heads 每个副本下一次要读取的链表节点，nil 表示该副本已关闭
	heads []*copyElement[T]

	closed uint32
}

// copyElement 共享链表节点，由最先到达的副本从原读取器填充。
type copyElement[T any] struct {
	once sync.Once
	next *copyElement[T]
	item streamItem[T]
}

type childStreamReader[T any] struct {
	parent *parentStreamReader[T]
	index  int
}

// peek 读取副本 idx 的下一个数据块。
// 同一副本不可并发调用，不同副本之间可以并发。
func (p *parentStreamReader[T]) peek(idx int) (t T, err error) {
	elem := p.heads[idx]
	if elem == nil {
		return t, ErrRecvAfterClosed
	}

	elem.once.Do(func() {
		t, err := p.sr.Recv()
		elem.item = streamItem[T]{chunk: t, err: err}
		if err != io.EOF {
			elem.next = &copyElement[T]{}
		}
	})

	// 节点填充后不再修改，各副本可以并发读取
	if elem.item.err != io.EOF {
		p.heads[idx] = elem.next
	}
	return elem.item.chunk, elem.item.err
}

func (p *parentStreamReader[T]) close(idx int) {
	if p.heads[idx] == nil {
		return
	}
	p.heads[idx] = nil

	if int(atomic.AddUint32(&p.closed, 1)) == len(p.heads) {
		p.sr.Close()
	}
}

func (csr *childStreamReader[T]) recv() (T, error) {
	return csr.parent.peek(csr.index)
}

func (csr *childStreamReader[T]) close() {
	csr.parent.close(csr.index)
}

func copyStreamReaders[T any](sr *StreamReader[T], n int) []*StreamReader[T] {
	parent := &parentStreamReader[T]{
		sr:    sr,
		heads: make([]*copyElement[T], n),
	}

	// 所有副本从同一个空节点开始
	elem := &copyElement[T]{}
	for i := range parent.heads {
		parent.heads[i] = elem
	}

	ret := make([]*StreamReader[T], n)
	for i := range ret {
		ret[i] = &StreamReader[T]{
			typ: readerTypeChild,
			csr: &childStreamReader[T]{parent: parent, index: i},
		}
	}
	return ret
}
