// Copyright (c) 2021 PaddlePaddle Authors. All Rights Reserved.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"

	"github.com/fedlearn/sshelr/config"
)

// Logging maintains the state associated with the sshelr logging system
type Logging struct {
	// Format is the log record format specifier for the Logging instance
	Format *logrus.TextFormatter

	// logrus log level, default info
	Level logrus.Level

	// Writer is the sink for encoded and formatted log records
	Writer io.Writer
}

const (
	TimeFormat   = "2006-01-02 15:04:05"
	DefaultLevel = logrus.InfoLevel
)

// InitLog initiates a Logging instance from the log section of the
// configuration file
func InitLog(conf *config.Log, fileName string, isSetFormat bool) (*Logging, error) {
	logging := &Logging{}

	if len(conf.Path) == 0 {
		return nil, errorx.New(errorx.ErrCodeConfig, "missing config: log.path")
	}
	if _, err := os.Stat(conf.Path); os.IsNotExist(err) {
		if err := os.MkdirAll(conf.Path, 0777); err != nil {
			return nil, errorx.New(errorx.ErrCodeConfig, "mkdir logs error, err: %v", err)
		}
	}

	level, err := logrus.ParseLevel(conf.Level)
	if err != nil {
		level = DefaultLevel
	}
	logging.Level = level

	writer, err := logging.writer(conf.Path, fileName)
	if err != nil {
		return nil, errorx.Wrap(err, "get log writer error")
	}
	logging.Writer = writer

	if isSetFormat {
		logging.Format = &logrus.TextFormatter{
			ForceColors:     true,
			FullTimestamp:   true,
			TimestampFormat: TimeFormat,
		}
	}
	return logging, nil
}

// writer builds the rotated log sink.
// A soft link points to the latest log file, files are kept for 30 days
// and cut once an hour.
func (l *Logging) writer(logPath, fileName string) (io.Writer, error) {
	logFileName := filepath.Join(logPath, fileName)

	logStd, err := rotatelogs.New(
		logFileName+".%Y%m%d%H",
		rotatelogs.WithLinkName(logFileName),
		rotatelogs.WithMaxAge(720*time.Hour),
		rotatelogs.WithRotationTime(time.Hour),
	)
	if err != nil {
		return nil, errorx.NewCode(err, errorx.ErrCodeInternal, "new rotatelogs error")
	}
	return logStd, nil
}
