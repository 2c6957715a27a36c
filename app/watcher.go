package app

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gaborage/go-sitesettings/logger"
)

const defaultReloadDebounce = 250 * time.Millisecond

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// watchSiteSettings calls reload once the site settings file has been quiet for
// debounce after a change. The parent directory is watched because patches
// replace the file by rename.
func watchSiteSettings(path string, debounce time.Duration, reload func(context.Context) error, log logger.Logger) (io.Closer, error) {
	if debounce <= 0 {
		debounce = defaultReloadDebounce
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		var (
			timer  *time.Timer
			timerC <-chan time.Time
		)
		resetTimer := func() {
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
				return
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)
			timerC = timer.C
		}

		for {
			select {
			case <-stopCh:
				if timer != nil {
					timer.Stop()
				}
				return
			case <-timerC:
				timerC = nil
				// Reload logs its own failure and keeps the previous model.
				_ = reload(context.Background())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("Site settings watcher error")
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if shouldReload(evt, target) {
					resetTimer()
				}
			}
		}
	}()

	log.Info().
		Str("path", target).
		Dur("debounce", debounce).
		Msg("Site settings auto-reload enabled")

	return closerFunc(func() error {
		close(stopCh)
		err := watcher.Close()
		<-doneCh
		return err
	}), nil
}

func shouldReload(evt fsnotify.Event, target string) bool {
	if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}
	name, err := filepath.Abs(evt.Name)
	if err != nil {
		return false
	}
	return name == target
}
