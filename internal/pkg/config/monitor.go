package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/gethiox/magneto/internal/pkg/logger"
)

func isMappingFile(name string) bool {
	name = strings.ToLower(name)
	for _, ext := range extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// DetectMappingChanges notifies about written or created mapping files in given directories.
// Channel is closed when ctx is done or watcher could not be created.
func DetectMappingChanges(ctx context.Context, dirs ...string) <-chan bool {
	var change = make(chan bool)

	go func() {
		defer close(change)
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			log.Info(fmt.Sprintf("creating config watcher failed: %v", err), logger.Warning)
			return
		}

		go func() {
			<-ctx.Done()
			err := watcher.Close()
			if err != nil {
				log.Info(fmt.Sprintf("closing watcher failed: %v", err), logger.Debug)
			}
		}()

		for _, path := range dirs {
			if err := watcher.Add(path); err != nil {
				log.Info(fmt.Sprintf("watching \"%s\" failed: %v", path, err), logger.Warning)
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Info(fmt.Sprintf("config watcher error: %v", err), logger.Debug)
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if !isMappingFile(event.Name) {
					continue
				}
				log.Info(fmt.Sprintf("config change detected: %s", event.Name), logger.Info)
				select {
				case change <- true:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return change
}
