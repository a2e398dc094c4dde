package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/systems"
)

const ShaderExtension = ".wgsl"

// Shader is a WGSL source file known to the library.
type Shader struct {
	Name   string
	Path   string
	Source string
	// Version starts at 1 and grows on every reload.
	Version    uint32
	LastLoaded time.Time
}

// ShaderLibrary indexes the WGSL files of a directory tree and, once Watch
// is called, reloads them in the background when they change on disk.
type ShaderLibrary struct {
	dir    string
	jobs   *systems.JobSystem
	events *core.EventBus

	mutex   sync.RWMutex
	shaders map[string]*Shader

	watcher  *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	isClosed bool
}

func NewShaderLibrary(dir string, jobs *systems.JobSystem, events *core.EventBus) *ShaderLibrary {
	return &ShaderLibrary{
		dir:     dir,
		jobs:    jobs,
		events:  events,
		shaders: make(map[string]*Shader),
		done:    make(chan struct{}),
	}
}

// ShaderName maps a file path to the name shaders are looked up by.
func ShaderName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func isShader(path string) bool {
	return filepath.Ext(path) == ShaderExtension
}

// Load reads every shader below the library directory.
func (sl *ShaderLibrary) Load() error {
	err := filepath.WalkDir(sl.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isShader(path) {
			return nil
		}
		source, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		sl.store(path, string(source))
		return nil
	})
	if err != nil {
		return fmt.Errorf("loading shaders from %s: %w", sl.dir, err)
	}
	core.LogInfo("loaded %d shaders from %s", sl.Len(), sl.dir)
	return nil
}

// store records the source and returns the new version.
func (sl *ShaderLibrary) store(path, source string) uint32 {
	name := ShaderName(path)

	sl.mutex.Lock()
	defer sl.mutex.Unlock()

	s, ok := sl.shaders[name]
	if !ok {
		s = &Shader{Name: name}
		sl.shaders[name] = s
	}
	s.Path = path
	s.Source = source
	s.Version++
	s.LastLoaded = time.Now()
	return s.Version
}

func (sl *ShaderLibrary) remove(path string) {
	sl.mutex.Lock()
	defer sl.mutex.Unlock()
	delete(sl.shaders, ShaderName(path))
}

// Get returns a copy of the named shader.
func (sl *ShaderLibrary) Get(name string) (Shader, bool) {
	sl.mutex.RLock()
	defer sl.mutex.RUnlock()

	s, ok := sl.shaders[name]
	if !ok {
		return Shader{}, false
	}
	return *s, true
}

func (sl *ShaderLibrary) Names() []string {
	sl.mutex.RLock()
	defer sl.mutex.RUnlock()

	names := make([]string, 0, len(sl.shaders))
	for name := range sl.shaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (sl *ShaderLibrary) Len() int {
	sl.mutex.RLock()
	defer sl.mutex.RUnlock()
	return len(sl.shaders)
}

// Watch starts reloading shaders when their files are created or written.
// Each reload runs on the job system and fires EVENT_CODE_SHADER_RELOADED
// with the shader name once the new source is stored.
func (sl *ShaderLibrary) Watch() error {
	if sl.isClosed {
		return errors.New("shader library already closed")
	}
	if sl.watcher != nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	err = filepath.WalkDir(sl.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
	if err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", sl.dir, err)
	}

	sl.watcher = w
	sl.wg.Add(1)
	go sl.start()
	core.LogDebug("watching %s for shader changes", sl.dir)
	return nil
}

func (sl *ShaderLibrary) start() {
	defer sl.wg.Done()
	for {
		select {
		case e, ok := <-sl.watcher.Events:
			if !ok {
				return
			}
			sl.handleEvent(e)

		case err, ok := <-sl.watcher.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %v", err)

		case <-sl.done:
			return
		}
	}
}

func (sl *ShaderLibrary) handleEvent(e fsnotify.Event) {
	if e.Has(fsnotify.Create) {
		if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
			if err := sl.watcher.Add(e.Name); err != nil {
				core.LogWarn("cannot watch new directory %s: %v", e.Name, err)
			}
			return
		}
	}
	if !isShader(e.Name) {
		return
	}
	switch {
	case e.Has(fsnotify.Create), e.Has(fsnotify.Write):
		sl.reload(e.Name)
	case e.Has(fsnotify.Remove), e.Has(fsnotify.Rename):
		sl.remove(e.Name)
		core.LogDebug("shader %s removed", ShaderName(e.Name))
	}
}

func (sl *ShaderLibrary) reload(path string) {
	job := systems.JobTask{
		Name:        "reload " + path,
		InputParams: path,
		OnStart: func(input interface{}) (interface{}, error) {
			source, err := os.ReadFile(input.(string))
			if err != nil {
				return nil, err
			}
			return string(source), nil
		},
		OnComplete: func(output interface{}) {
			version := sl.store(path, output.(string))
			name := ShaderName(path)
			core.LogInfo("shader %s reloaded (version %d)", name, version)
			if sl.events != nil {
				sl.events.Fire(core.EventContext{Type: core.EVENT_CODE_SHADER_RELOADED, Data: name})
			}
		},
	}
	if sl.jobs == nil {
		// no job system: reload inline on the watcher goroutine
		sl.runInline(job)
		return
	}
	sl.jobs.AddWorkNonBlocking(job)
}

func (sl *ShaderLibrary) runInline(job systems.JobTask) {
	output, err := job.OnStart(job.InputParams)
	if err != nil {
		core.LogError("%s failed: %v", job.Name, err)
		return
	}
	job.OnComplete(output)
}

// Close stops watching. Reload jobs already queued still complete.
func (sl *ShaderLibrary) Close() error {
	if sl.isClosed {
		return nil
	}
	sl.isClosed = true
	close(sl.done)
	if sl.watcher == nil {
		return nil
	}
	err := sl.watcher.Close()
	sl.wg.Wait()
	return err
}
