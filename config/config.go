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

package config

import (
	"github.com/spf13/viper"
)

var (
	logConf     *Log
	trainerConf *TrainerConf
)

// TrainerConf configures one training party process
type TrainerConf struct {
	Name string
	// Role is "guest" or "host"
	Role string
	// AllowReviewGuestOnly is the process-wide authorization for the
	// all_review_in_guest strategy. It is deployment policy, a training job
	// cannot turn it on by itself.
	AllowReviewGuestOnly bool
	Params               *TrainParams
}

type Log struct {
	Level string
	Path  string
}

// InitConfig parses configuration file
func InitConfig(configPath string) error {
	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	logConf = new(Log)
	if err := v.Sub("log").Unmarshal(logConf); err != nil {
		return err
	}
	trainerConf = new(TrainerConf)
	if err := v.Sub("trainer").Unmarshal(trainerConf); err != nil {
		return err
	}
	return nil
}

func GetTrainerConf() *TrainerConf {
	return trainerConf
}

func GetLogConf() *Log {
	return logConf
}
