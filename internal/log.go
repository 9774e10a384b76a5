// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package internal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

// Log writer for the command line. Writes to stdout, and optionally to a file.
// Does not add prefixes, or force newlines. Safe for concurrent use
type LogWriter struct {
	mu     sync.Mutex
	out    io.Writer
	file   *bufio.Writer
	fileOS *os.File
}

// Singleton log writer
var Log = NewLogWriter(os.Stdout)

func NewLogWriter(out io.Writer) *LogWriter {
	return &LogWriter{out: out}
}

// Enables logging to file, closing any previous log file
func (l *LogWriter) AlsoToFile(fileName string) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err = l.closeFile(); err != nil {
		return err
	}
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	l.fileOS, l.file = f, bufio.NewWriter(f)
	return nil
}

func (l *LogWriter) closeFile() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Flush()
	if cerr := l.fileOS.Close(); err == nil {
		err = cerr
	}
	l.file, l.fileOS = nil, nil
	return err
}

func (l *LogWriter) Write(p []byte) (n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, err = l.out.Write(p)
	if err != nil || l.file == nil {
		return n, err
	}
	return l.file.Write(p)
}

// Flushes the log file to disk, if any
func (l *LogWriter) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	if err := l.file.Flush(); err != nil {
		return err
	}
	return l.fileOS.Sync()
}

// Flushes and closes the log file, if any. Later output goes to stdout only
func (l *LogWriter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeFile()
}

func LogAlsoToFile(fileName string) error { return Log.AlsoToFile(fileName) }

func LogPrintf(format string, args ...interface{}) (n int, err error) {
	return fmt.Fprintf(Log, format, args...)
}

func LogFatalf(format string, args ...interface{}) {
	fmt.Fprintf(Log, format, args...)
	Log.Close()
	os.Exit(1)
}

func LogSync() error { return Log.Sync() }
