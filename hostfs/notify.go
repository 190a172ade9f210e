package hostfs

import (
	"io"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/macos-fuse-t/go-vfsmux/vfs"
	log "github.com/sirupsen/logrus"
)

// selectWatch is the state of one StartSelect. Writes are always possible and
// reads are possible while the offset is short of the file size; a file at
// its end is watched until something grows it.
type selectWatch struct {
	mu      sync.Mutex
	readfds *vfs.FdSet
	pending map[string][]int
	files   map[int]*openFile
	sem     vfs.Semaphore

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// readable reports whether a read on open would return data without
// blocking.
func readable(open *openFile) bool {
	info, err := open.f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return true
	}
	pos, err := open.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return true
	}
	return pos < info.Size()
}

func (fs *PassthroughFS) StartSelect(nfds int, readfds, writefds, errorfds *vfs.FdSet, sem vfs.Semaphore) (interface{}, error) {
	w := &selectWatch{
		readfds: readfds,
		pending: make(map[string][]int),
		files:   make(map[int]*openFile),
		sem:     sem,
	}

	var wantRead, wantWrite []int
	for fd := 0; fd < nfds; fd++ {
		if vfs.FdIsSet(readfds, fd) {
			wantRead = append(wantRead, fd)
		}
		if vfs.FdIsSet(writefds, fd) {
			wantWrite = append(wantWrite, fd)
		}
	}
	vfs.FdZero(readfds)
	vfs.FdZero(writefds)
	vfs.FdZero(errorfds)

	ready := false
	for _, fd := range wantWrite {
		vfs.FdSetBit(writefds, fd)
		ready = true
	}
	for _, fd := range wantRead {
		open, err := fs.get(fd)
		if err != nil || readable(open) {
			// a bad descriptor is reported ready so the read returns the error
			vfs.FdSetBit(readfds, fd)
			ready = true
			continue
		}
		w.pending[open.path] = append(w.pending[open.path], fd)
		w.files[fd] = open
	}

	if len(w.pending) > 0 {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			log.Errorf("failed creating a new watcher: %v", err)
			return nil, err
		}
		for p := range w.pending {
			if err := watcher.Add(p); err != nil {
				log.Errorf("watch %s: %v", p, err)
				watcher.Close()
				return nil, err
			}
		}
		w.watcher = watcher
		w.done = make(chan struct{})
		go w.eventListener()
	}

	if ready {
		sem.Signal()
	}
	return w, nil
}

func (w *selectWatch) eventListener() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) {
				continue
			}
			log.Debugf("watcher event: %+v", event)
			w.check(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("watcher error: %v", err)
		}
	}
}

func (w *selectWatch) check(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	fired := false
	remaining := w.pending[name][:0]
	for _, fd := range w.pending[name] {
		if readable(w.files[fd]) {
			vfs.FdSetBit(w.readfds, fd)
			fired = true
			continue
		}
		remaining = append(remaining, fd)
	}
	w.pending[name] = remaining
	if fired {
		w.sem.Signal()
	}
}

func (fs *PassthroughFS) EndSelect(handle interface{}) error {
	w, ok := handle.(*selectWatch)
	if !ok || w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done
	return err
}
