/*
 * Copyright 2023 The any2feed Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logging provides the logfmt-style application logger
package logging

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/any2feed/any2feed/pkg/observability/logging/level"
	"github.com/any2feed/any2feed/pkg/observability/logging/options"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var (
	_ Logger    = &logger{}
	_ io.Writer = &logger{}
)

// Logger is the leveled, key=value event logger used across the application
type Logger interface {
	SetLogLevel(level.Level)
	SetLogAsynchronous(bool)
	Level() level.Level
	Close()
	//
	Log(logLevel level.Level, event string, detail Pairs)
	Debug(event string, detail Pairs)
	Info(event string, detail Pairs)
	Warn(event string, detail Pairs)
	Error(event string, detail Pairs)
	Fatal(code int, event string, detail Pairs)
	//
	DebugOnce(key, event string, detail Pairs) bool
	InfoOnce(key, event string, detail Pairs) bool
	WarnOnce(key, event string, detail Pairs) bool
	ErrorOnce(key, event string, detail Pairs) bool
	HasLoggedOnce(logLevel level.Level, key string) bool
}

type logFunc func(level.Level, string, Pairs)

// Pairs represents a key=value pair that helps to describe a log event
type Pairs map[string]any

// New returns a Logger for the provided logging options. An empty LogFile
// logs to stdout; otherwise the file is rotated by lumberjack.
func New(o *options.Options) Logger {
	if o == nil {
		o = options.New()
	}
	l := &logger{
		now: time.Now,
	}
	l.logFunc = l.log
	if o.LogFile == "" {
		l.writer = os.Stdout
	} else {
		l.writer = &lumberjack.Logger{
			Filename:   o.LogFile,
			MaxSize:    64, // megabytes
			MaxBackups: 8,
			MaxAge:     7, // days
			Compress:   true,
		}
	}
	if c, ok := l.writer.(io.Closer); ok && c != nil && o.LogFile != "" {
		l.closer = c
	}
	l.SetLogLevel(level.Level(strings.ToLower(o.LogLevel)))
	return l
}

// NoopLogger returns a Logger that discards every event
func NoopLogger() Logger {
	return &logger{
		logFunc: func(level.Level, string, Pairs) {},
		levelID: level.InfoID,
		level:   level.Info,
		now:     time.Now,
	}
}

// StreamLogger returns a synchronous Logger writing to w
func StreamLogger(w io.Writer, logLevel level.Level) Logger {
	l := &logger{
		writer: w,
		now:    time.Now,
	}
	l.logFunc = l.log
	if c, ok := l.writer.(io.Closer); ok && c != nil {
		l.closer = c
	}
	l.SetLogLevel(logLevel)
	return l
}

// ConsoleLogger returns a Logger writing to stdout
func ConsoleLogger(logLevel level.Level) Logger {
	l := &logger{
		writer: os.Stdout,
		now:    time.Now,
	}
	l.logFunc = l.log
	l.SetLogLevel(logLevel)
	return l
}

type logger struct {
	level          level.Level
	levelID        level.ID
	writer         io.Writer
	closer         io.Closer
	mtx            sync.Mutex
	onceRanEntries sync.Map
	logFunc        logFunc
	now            func() time.Time
	wg             sync.WaitGroup
}

func (l *logger) Write(b []byte) (int, error) {
	if l.writer == nil {
		return 0, nil
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.writer.Write(b)
}

func (l *logger) SetLogLevel(logLevel level.Level) {
	id := level.GetID(logLevel)
	if id == 0 {
		l.level = level.Info
		l.levelID = level.InfoID
		l.WarnOnce("loglevel."+string(logLevel),
			"unknown log level; using INFO",
			Pairs{"providedLevel": logLevel})
		return
	}
	l.level = logLevel
	l.levelID = id
}

func (l *logger) SetLogAsynchronous(asyncEnabled bool) {
	if asyncEnabled {
		l.logFunc = l.logAsynchronous
	} else {
		l.logFunc = l.log
	}
}

func (l *logger) Log(logLevel level.Level, event string, detail Pairs) {
	lid := level.GetID(logLevel)
	if lid == 0 || lid < l.levelID {
		return
	}
	l.logFunc(logLevel, event, detail)
}

func (l *logger) logConditionally(lvl level.Level, levelID level.ID, event string, detail Pairs) {
	if l.levelID > levelID {
		return
	}
	l.logFunc(lvl, event, detail)
}

func (l *logger) Debug(event string, detail Pairs) {
	l.logConditionally(level.Debug, level.DebugID, event, detail)
}

func (l *logger) Info(event string, detail Pairs) {
	l.logConditionally(level.Info, level.InfoID, event, detail)
}

func (l *logger) Warn(event string, detail Pairs) {
	l.logConditionally(level.Warn, level.WarnID, event, detail)
}

func (l *logger) Error(event string, detail Pairs) {
	l.logConditionally(level.Error, level.ErrorID, event, detail)
}

func (l *logger) Fatal(code int, event string, detail Pairs) {
	l.log(level.Fatal, event, detail)
	if code < 0 {
		// tests send a negative code to avoid exiting
		return
	}
	if code == 0 {
		code = 1
	}
	os.Exit(code)
}

func (l *logger) logOnce(logLevel level.Level, lid level.ID,
	key, event string, detail Pairs,
) bool {
	if lid == 0 || lid < l.levelID || l.HasLoggedOnce(logLevel, key) {
		return false
	}
	key = string(logLevel) + "." + key
	_, loaded := l.onceRanEntries.LoadOrStore(key, true)
	if !loaded {
		l.log(logLevel, event, detail)
	}
	return !loaded
}

func (l *logger) DebugOnce(key, event string, detail Pairs) bool {
	return l.logOnce(level.Debug, level.DebugID, key, event, detail)
}

func (l *logger) InfoOnce(key, event string, detail Pairs) bool {
	return l.logOnce(level.Info, level.InfoID, key, event, detail)
}

func (l *logger) WarnOnce(key, event string, detail Pairs) bool {
	return l.logOnce(level.Warn, level.WarnID, key, event, detail)
}

func (l *logger) ErrorOnce(key, event string, detail Pairs) bool {
	return l.logOnce(level.Error, level.ErrorID, key, event, detail)
}

func (l *logger) HasLoggedOnce(logLevel level.Level, key string) bool {
	_, ok := l.onceRanEntries.Load(string(logLevel) + "." + key)
	return ok
}

func (l *logger) logAsynchronous(logLevel level.Level, event string, detail Pairs) {
	stack := getCallerStack(1)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.logWithStack(logLevel, event, detail, stack)
	}()
}

func (l *logger) log(logLevel level.Level, event string, detail Pairs) {
	l.logWithStack(logLevel, event, detail, getCallerStack(1))
}

type item struct {
	key string
	val string
}

const (
	space   = " "
	equal   = "="
	newline = "\n"
)

// getCallerStack returns the first frame under /pkg/ or /cmd/ that is
// outside of the logging packages
func getCallerStack(skip int) string {
	for s := skip; s < skip+20; s++ {
		_, file, line, ok := runtime.Caller(s)
		if !ok {
			break
		}
		idx := strings.Index(file, "/pkg/")
		if idx == -1 {
			idx = strings.Index(file, "/cmd/")
		}
		if idx == -1 || strings.Contains(file, "/pkg/observability/logging/") {
			continue
		}
		return file[idx+1:] + ":" + strconv.Itoa(line)
	}
	return ""
}

func (l *logger) logWithStack(logLevel level.Level, event string, detail Pairs, stack string) {
	if l.writer == nil {
		return
	}
	ts := l.now()
	event = strings.TrimSpace(event)

	var sb strings.Builder
	sb.WriteString("time=" + ts.UTC().Format(time.RFC3339Nano) + space +
		"app=any2feed" + space +
		"level=" + string(logLevel) + space +
		"event=" + quoteAsNeeded(event))
	if stack != "" {
		sb.WriteString(space + "caller=" + stack)
	}

	if len(detail) > 0 {
		keyPairs := make([]item, 0, len(detail))
		for k, v := range detail {
			var s string
			switch t := v.(type) {
			case string:
				s = quoteAsNeeded(t)
			case error:
				s = quoteAsNeeded(t.Error())
			case fmt.Stringer:
				s = quoteAsNeeded(t.String())
			default:
				s = quoteAsNeeded(fmt.Sprintf("%v", v))
			}
			keyPairs = append(keyPairs, item{k, s})
		}
		slices.SortFunc(keyPairs, func(a, b item) int {
			return cmp.Compare(a.key, b.key)
		})
		for _, v := range keyPairs {
			sb.WriteString(space + v.key + equal + v.val)
		}
	}
	sb.WriteString(newline)
	l.mtx.Lock()
	l.writer.Write([]byte(sb.String()))
	l.mtx.Unlock()
}

func quoteAsNeeded(input string) string {
	if !strings.ContainsAny(input, " \t\"=") {
		return input
	}
	return `"` + strings.ReplaceAll(input, `"`, `\"`) + `"`
}

func (l *logger) Level() level.Level {
	return l.level
}

func (l *logger) Close() {
	l.wg.Wait()
	if l.closer != nil {
		l.closer.Close()
	}
}
