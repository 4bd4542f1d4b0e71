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

package cli

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/spf13/cobra"

	"github.com/fedlearn/sshelr/errcodes"
	model "github.com/fedlearn/sshelr/mpc/models/logic_reg_vl"
)

var (
	modelFile  string
	sampleFile string
)

// predictCmd scores samples against the locally visible part of a trained
// model. It only covers the coefficients this party reviewed, a full score
// needs both parties' partial predictions.
var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "score a csv of samples with a stored model",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runPredict(); err != nil {
			fmt.Printf("predict failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func runPredict() error {
	bs, err := ioutil.ReadFile(modelFile)
	if err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeParam, "failed to read model file %s", modelFile)
	}
	m, err := model.FromBytes(bs)
	if err != nil {
		return err
	}

	header, rows, err := readCsv(sampleFile)
	if err != nil {
		return err
	}
	for i, row := range rows {
		sample := make(map[string]float64, len(header))
		for j, name := range header {
			sample[name] = row[j]
		}
		fmt.Printf("%d,%.6f\n", i, m.Predict(sample))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().StringVarP(&modelFile, "model", "m", "", "stored model file")
	predictCmd.Flags().StringVarP(&sampleFile, "file", "f", "", "csv of samples to score")
	predictCmd.MarkFlagRequired("model")
	predictCmd.MarkFlagRequired("file")
}
