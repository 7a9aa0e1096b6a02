package mdcli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"oss.terrastruct.com/util-go/xmain"

	"github.com/eivindml/marker-dispersion/lib/log"
)

type watcherOpts struct {
	inputPath  string
	outputPath string
	timeout    time.Duration
	open       bool
}

// watcher resolves the input again whenever it or one of its GeoJSON sources
// changes. Every run goes through the same resolver, so an edit to the input
// behaves like the map moving: labels start from where the last run left them.
type watcher struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	ms *xmain.State
	r  *resolver
	watcherOpts

	resolveCh chan struct{}

	fw *fsnotify.Watcher

	closeMu sync.Mutex
	closing bool

	errMu sync.Mutex
	err   error
}

func newWatcher(ctx context.Context, ms *xmain.State, r *resolver, opts watcherOpts) (*watcher, error) {
	ctx, cancel := context.WithCancel(ctx)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, err
	}
	return &watcher{
		ctx:    ctx,
		cancel: cancel,

		ms:          ms,
		r:           r,
		watcherOpts: opts,

		resolveCh: make(chan struct{}, 1),
		fw:        fw,
	}, nil
}

func watchCmd(ctx context.Context, ms *xmain.State, ropts runOpts, opts watcherOpts) error {
	r, err := newResolver(ms, ropts)
	if err != nil {
		return err
	}
	w, err := newWatcher(ctx, ms, r, opts)
	if err != nil {
		return err
	}
	return w.run()
}

func (w *watcher) run() error {
	defer w.close()

	w.goFunc(w.watchLoop)
	w.goFunc(w.resolveLoop)

	w.wg.Wait()
	w.close()
	return w.err
}

func (w *watcher) close() {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	if w.closing {
		return
	}
	w.closing = true

	w.cancel()
	err := w.fw.Close()
	w.setErr(err)
}

func (w *watcher) setErr(err error) {
	w.errMu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.errMu.Unlock()
}

func (w *watcher) goFunc(fn func(context.Context) error) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.cancel()

		err := fn(w.ctx)
		w.setErr(err)
	}()
}

// watchLoop turns file system events into resolve requests. Events are batched
// until 16ms pass without one so that an editor writing a file in several
// steps triggers a single run. A slow poll catches changes whose events were
// lost.
func (w *watcher) watchLoop(ctx context.Context) error {
	lastModified := make(map[string]time.Time)

	mt, err := w.ensureAddWatch(ctx, w.inputPath)
	if err != nil {
		return err
	}
	lastModified[w.inputPath] = mt
	w.ms.Log.Info.Printf("resolving %v...", w.ms.HumanPath(w.inputPath))
	w.requestResolve()

	eatBurstTimer := time.NewTimer(0)
	<-eatBurstTimer.C
	pollTicker := time.NewTicker(time.Second * 10)
	defer pollTicker.Stop()

	changed := make(map[string]struct{})

	for {
		select {
		case <-pollTicker.C:
			missedChanges := false
			for _, watched := range w.fw.WatchList() {
				mt, err := w.ensureAddWatch(ctx, watched)
				if err != nil {
					return err
				}
				if mt2, ok := lastModified[watched]; !ok || !mt.Equal(mt2) {
					missedChanges = true
					lastModified[watched] = mt
				}
			}
			if missedChanges {
				w.requestResolve()
			}
		case ev, ok := <-w.fw.Events:
			if !ok {
				return errors.New("fsnotify watcher closed")
			}
			w.ms.Log.Debug.Printf("received file system event %v", ev)
			mt, err := w.ensureAddWatch(ctx, ev.Name)
			if err != nil {
				return err
			}
			if ev.Op == fsnotify.Chmod {
				if mt.Equal(lastModified[ev.Name]) {
					// Benign chmod, see https://github.com/fsnotify/fsnotify/issues/15
					continue
				}
			}
			lastModified[ev.Name] = mt
			changed[ev.Name] = struct{}{}
			eatBurstTimer.Reset(time.Millisecond * 16)
		case <-eatBurstTimer.C:
			var changedList []string
			for k := range changed {
				changedList = append(changedList, k)
				delete(changed, k)
			}
			if len(changedList) == 0 {
				continue
			}
			sort.Strings(changedList)
			changedStr := w.ms.HumanPath(changedList[0])
			for i := 1; i < len(changedList); i++ {
				changedStr += fmt.Sprintf(", %s", w.ms.HumanPath(changedList[i]))
			}
			w.ms.Log.Info.Printf("detected change in %s: resolving again...", changedStr)
			w.requestResolve()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return errors.New("fsnotify watcher closed")
			}
			w.ms.Log.Error.Printf("fsnotify error: %v", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *watcher) requestResolve() {
	select {
	case w.resolveCh <- struct{}{}:
	default:
	}
}

// ensureAddWatch retries with backoff until path can be watched. Editors that
// save by renaming leave a short window in which the file does not exist.
func (w *watcher) ensureAddWatch(ctx context.Context, path string) (time.Time, error) {
	interval := time.Millisecond * 16
	tc := time.NewTimer(0)
	<-tc.C
	for {
		mt, err := w.addWatch(path)
		if err == nil {
			return mt, nil
		}
		if interval >= time.Second {
			w.ms.Log.Error.Printf("failed to watch %q: %v (retrying in %v)", w.ms.HumanPath(path), err, interval)
		}

		tc.Reset(interval)
		select {
		case <-tc.C:
			if interval < time.Second {
				interval = time.Second
			}
			if interval < time.Second*16 {
				interval *= 2
			}
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		}
	}
}

func (w *watcher) addWatch(path string) (time.Time, error) {
	err := w.fw.Add(path)
	if err != nil {
		return time.Time{}, err
	}
	d, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return d.ModTime(), nil
}

// replaceWatchList watches exactly the input and paths.
func (w *watcher) replaceWatchList(ctx context.Context, paths []string) error {
	want := make(map[string]struct{}, len(paths)+1)
	want[w.inputPath] = struct{}{}
	for _, p := range paths {
		want[p] = struct{}{}
	}

	watching := make(map[string]struct{})
	for _, watched := range w.fw.WatchList() {
		if _, ok := want[watched]; !ok {
			// Don't mind errors here
			w.fw.Remove(watched)
			continue
		}
		watching[watched] = struct{}{}
	}
	for _, p := range paths {
		if _, ok := watching[p]; ok {
			continue
		}
		_, err := w.ensureAddWatch(ctx, p)
		if err != nil {
			return err
		}
		watching[p] = struct{}{}
	}
	return nil
}

func (w *watcher) resolveLoop(ctx context.Context) error {
	firstResolve := true
	for {
		select {
		case <-w.resolveCh:
		case <-ctx.Done():
			return ctx.Err()
		}

		prefix := ""
		if !firstResolve {
			prefix = "re"
		}

		rctx, cancel := log.WithTimeout(ctx, w.timeout)
		paths, err := w.r.resolve(rctx, w.inputPath, w.outputPath)
		cancel()
		if err != nil {
			w.ms.Log.Error.Printf("failed to %sresolve: %v", prefix, err)
		} else if w.outputPath != "-" {
			w.ms.Log.Success.Printf("successfully %sresolved %v to %v", prefix, w.ms.HumanPath(w.inputPath), w.ms.HumanPath(w.outputPath))
		}

		err = w.replaceWatchList(ctx, paths)
		if err != nil {
			return err
		}

		if firstResolve {
			firstResolve = false
			if w.open {
				openOutput(ctx, w.ms, w.outputPath)
			}
		}
	}
}
