//go:build linux

package poller

import (
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// EpollPoller is an epoll-based readiness multiplexer.
type EpollPoller struct {
	epfd   int
	events []unix.EpollEvent

	// Serializes registration against cross-thread Remove. The kernel
	// allows concurrent epoll_ctl/epoll_wait, so Wait stays lock-free.
	mu      sync.Mutex
	watched map[int]bool
}

// New creates a Poller. maxEvents sizes the batch returned by one Wait.
func New(maxEvents int) (Poller, error) {
	if maxEvents <= 0 {
		maxEvents = 1024
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "creating epoll instance")
	}

	return &EpollPoller{
		epfd:    epfd,
		events:  make([]unix.EpollEvent, maxEvents),
		watched: make(map[int]bool),
	}, nil
}

const readableEvents = unix.EPOLLIN | unix.EPOLLRDHUP

// Add registers a handle for readable events. Level-triggered.
func (p *EpollPoller) Add(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watched[fd] {
		return nil
	}

	ev := unix.EpollEvent{Events: readableEvents, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return errors.Wrapf(err, "registering fd %d", fd)
	}
	p.watched[fd] = true
	return nil
}

// Disable stops watching the readable side of a handle. Hangup is still
// reported so a peer close is not missed.
func (p *EpollPoller) Disable(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.watched[fd] {
		return nil
	}
	ev := unix.EpollEvent{Events: unix.EPOLLRDHUP, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return errors.Wrapf(err, "disabling fd %d", fd)
	}
	return nil
}

// Enable re-enables readable events on a handle.
func (p *EpollPoller) Enable(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.watched[fd] {
		return nil
	}
	ev := unix.EpollEvent{Events: readableEvents, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return errors.Wrapf(err, "enabling fd %d", fd)
	}
	return nil
}

// Remove unregisters a handle. Safe to call for handles that were never
// added or were already removed.
func (p *EpollPoller) Remove(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.watched[fd] {
		return nil
	}
	delete(p.watched, fd)
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return errors.Wrapf(err, "unregistering fd %d", fd)
	}
	return nil
}

// Wait blocks up to timeoutMS for readiness events.
func (p *EpollPoller) Wait(timeoutMS int) ([]Event, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, errors.Wrap(err, "epoll wait")
	}

	if n <= 0 {
		return nil, nil
	}

	batch := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		ev := p.events[i]
		batch = append(batch, Event{
			FD:       int(ev.Fd),
			Readable: ev.Events&unix.EPOLLIN != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			Hangup:   ev.Events&(unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0,
		})
	}
	return batch, nil
}

// Close releases the epoll instance.
func (p *EpollPoller) Close() error {
	return unix.Close(p.epfd)
}
