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

package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/fedlearn/sshelr/cmd/cli"
	"github.com/fedlearn/sshelr/config"
	"github.com/fedlearn/sshelr/util/logging"
)

// init reads the config file when present, a bare CLI run logs to stderr
func init() {
	if _, err := os.Stat("conf/config.toml"); err != nil {
		logrus.SetLevel(logrus.InfoLevel)
		return
	}
	if err := config.InitConfig("conf/config.toml"); err != nil {
		appExit(err)
	}

	logConf := config.GetLogConf()
	logStd, err := logging.InitLog(logConf, "trainer.log", true)
	if err != nil {
		appExit(err)
	}
	// writes the standard output to the log file
	logrus.SetOutput(logStd.Writer)
	logrus.SetLevel(logStd.Level)
	logrus.SetFormatter(logStd.Format)
}

// main is where execution of the program begins
func main() {
	cli.Execute()
}

func appExit(err error) {
	logrus.WithError(err).Error("trainer starts error")
	os.Exit(-1)
}
