package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
)

// addrOf returns the address of buf's backing array as a uintptr, the
// form giouring's zero-copy SQE preparation calls expect. buf must not be
// empty and must not move (be reallocated) while a transfer against it
// is in flight, which holding it out of the empty/full pools guarantees.
func addrOf(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(&buf[0]))
}

// Broker owns one io_uring instance per accelerator file descriptor and
// is shared read-only across every H2D/D2H DeviceBuffer attached to that
// accelerator. Grounded on iouRing, which owns one *io_uring per ublk
// control/queue fd and hands out a channel-per-request completion model;
// here the same ring drives plain
// IORING_OP_READ/IORING_OP_WRITE transfers against an accelerator fd
// (Vulkan/WGPU/Zynq-UIO/udmabuf fds are all ordinary fds from userspace)
// instead of ublk URING_CMDs.
type Broker struct {
	ring *giouring.Ring

	mu      sync.Mutex
	pending map[uint64]chan transferResult
	nextID  atomic.Uint64

	done chan struct{}
	wg   sync.WaitGroup
}

type transferResult struct {
	n   int32
	err error
}

// NewBroker creates a Broker with entries submission-queue slots.
func NewBroker(entries uint32) (*Broker, error) {
	ring, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, fmt.Errorf("stream: create io_uring: %w", err)
	}
	b := &Broker{
		ring:    ring,
		pending: make(map[uint64]chan transferResult),
		done:    make(chan struct{}),
	}
	b.wg.Add(1)
	go b.completionLoop()
	return b, nil
}

// Close stops the completion loop and tears down the ring.
func (b *Broker) Close() error {
	close(b.done)
	b.wg.Wait()
	b.ring.QueueExit()
	return nil
}

func (b *Broker) completionLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		default:
		}

		cqe, err := b.ring.WaitCQE()
		if err != nil {
			continue
		}
		ud := cqe.UserData
		res := cqe.Res
		b.ring.CQESeen(cqe)

		b.mu.Lock()
		ch, ok := b.pending[ud]
		if ok {
			delete(b.pending, ud)
		}
		b.mu.Unlock()
		if ok {
			ch <- transferResult{n: res}
		}
	}
}

// submit queues a single read or write SQE against fd and blocks
// (respecting ctx) until the completion arrives.
func (b *Broker) submit(ctx context.Context, fd int, buf []byte, offset uint64, write bool) (int, error) {
	id := b.nextID.Add(1)
	ch := make(chan transferResult, 1)

	b.mu.Lock()
	sqe := b.ring.GetSQE()
	if sqe == nil {
		b.mu.Unlock()
		return 0, fmt.Errorf("stream: submission queue full")
	}
	if write {
		sqe.PrepareWrite(fd, addrOf(buf), uint32(len(buf)), offset)
	} else {
		sqe.PrepareRead(fd, addrOf(buf), uint32(len(buf)), offset)
	}
	sqe.UserData = id
	b.pending[id] = ch
	_, err := b.ring.Submit()
	b.mu.Unlock()
	if err != nil {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
		return 0, fmt.Errorf("stream: submit transfer: %w", err)
	}

	select {
	case r := <-ch:
		if r.n < 0 {
			return 0, fmt.Errorf("stream: transfer failed, res=%d", r.n)
		}
		return int(r.n), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// DeviceBuffer is an H2D or D2H stream edge backed by a fixed pool of
// fixed-size host buffers transferred to/from a device fd via a shared
// Broker.
type DeviceBuffer struct {
	broker *Broker
	fd     int

	bufSize int
	empty   chan []byte
	full    chan []byte

	offset atomic.Uint64
}

// NewDeviceBuffer allocates n host-visible buffers of bufSize bytes each
// for transfers against fd through broker.
func NewDeviceBuffer(broker *Broker, fd int, n, bufSize int) *DeviceBuffer {
	d := &DeviceBuffer{
		broker:  broker,
		fd:      fd,
		bufSize: bufSize,
		empty:   make(chan []byte, n),
		full:    make(chan []byte, n),
	}
	for i := 0; i < n; i++ {
		d.empty <- make([]byte, bufSize)
	}
	return d
}

// AcquireEmpty blocks until a buffer is free to fill with host data bound
// for the device (H2D).
func (d *DeviceBuffer) AcquireEmpty(ctx context.Context) ([]byte, error) {
	select {
	case buf := <-d.empty:
		return buf, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SubmitFull transfers buf to the device and, once the transfer
// completes, returns it to the empty pool.
func (d *DeviceBuffer) SubmitFull(buf []byte) error {
	off := d.offset.Add(uint64(len(buf))) - uint64(len(buf))
	ctx := context.Background()
	if _, err := d.broker.submit(ctx, d.fd, buf, off, true); err != nil {
		return err
	}
	d.empty <- buf
	return nil
}

// AcquireFull blocks until a transfer-complete buffer of device data
// (D2H) is available.
func (d *DeviceBuffer) AcquireFull(ctx context.Context) ([]byte, error) {
	select {
	case buf := <-d.full:
		return buf, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReleaseEmpty submits buf for a fresh device-to-host transfer and, on
// completion, enqueues it on the full channel for AcquireFull.
func (d *DeviceBuffer) ReleaseEmpty(buf []byte) {
	go func() {
		off := d.offset.Add(uint64(len(buf))) - uint64(len(buf))
		ctx := context.Background()
		if _, err := d.broker.submit(ctx, d.fd, buf, off, false); err != nil {
			return
		}
		d.full <- buf
	}()
}
