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
	"encoding/csv"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	"github.com/spf13/cobra"

	"github.com/fedlearn/sshelr/config"
	"github.com/fedlearn/sshelr/errcodes"
	learner "github.com/fedlearn/sshelr/mpc/learners/logic_reg_vl"
	model "github.com/fedlearn/sshelr/mpc/models/logic_reg_vl"
	"github.com/fedlearn/sshelr/mpc/session"
	"github.com/fedlearn/sshelr/mpc/transfer"
)

var (
	guestFile string
	hostFile  string
	labelName string

	penalty      string
	alpha        float64
	optimizer    string
	batchSize    int64
	learningRate float64
	maxIter      int
	earlyStop    string
	tol          float64
	fitIntercept bool
	precision    int
	review       string
	allowGuest   bool

	guestModelOut string
	hostModelOut  string
)

// trainCmd runs both parties of a secure training over an in-memory link,
// useful to evaluate a model before deploying the networked setup
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "train a vertical logistic regression on two local csv files",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runTrain(); err != nil {
			fmt.Printf("train failed: %v\n", err)
			os.Exit(1)
		}
	},
}

type partyOutcome struct {
	res *learner.TrainResult
	err error
}

func runTrain() error {
	guestHeader, guestRows, err := readCsv(guestFile)
	if err != nil {
		return err
	}
	hostHeader, hostRows, err := readCsv(hostFile)
	if err != nil {
		return err
	}
	guestHeader, guestRows, labels, err := splitLabel(guestHeader, guestRows, labelName)
	if err != nil {
		return err
	}
	if len(guestRows) != len(hostRows) {
		return errorx.New(errcodes.ErrCodeParam,
			"sample sets are not aligned, guest has %d rows, host has %d", len(guestRows), len(hostRows))
	}

	params := config.DefaultTrainParams()
	params.Penalty = penalty
	params.Alpha = alpha
	params.Optimizer = optimizer
	params.BatchSize = batchSize
	params.LearningRate = learningRate
	params.MaxIter = maxIter
	params.EarlyStop = earlyStop
	params.Tol = tol
	params.FitIntercept = fitIntercept
	params.FloatingPointPrecision = precision
	params.ReviewStrategy = review
	params.AllowReviewGuestOnly = reviewAuthorization(config.GetTrainerConf(), allowGuest)

	gEnd, hEnd := transfer.Pair()
	defer gEnd.Close()

	hostDone := make(chan partyOutcome, 1)
	go func() {
		res, err := runParty(session.RoleHost, hEnd, params, hostRows, nil)
		hostDone <- partyOutcome{res: res, err: err}
	}()
	guestRes, guestErr := runParty(session.RoleGuest, gEnd, params, guestRows, labels)
	host := <-hostDone
	if guestErr != nil {
		return guestErr
	}
	if host.err != nil {
		return host.err
	}

	fmt.Printf("finished after %d epochs, converged=%v, final loss %.6f\n",
		guestRes.Epochs, guestRes.IsConverged, guestRes.LossHistory[len(guestRes.LossHistory)-1])

	guestModel, err := model.FromTrainResult(guestRes, guestHeader, params, params.FitIntercept)
	if err != nil {
		return err
	}
	if err := writeModel(guestModel, guestModelOut); err != nil {
		return err
	}
	hostModel, err := model.FromTrainResult(host.res, hostHeader, params, false)
	if err != nil {
		return err
	}
	return writeModel(hostModel, hostModelOut)
}

// reviewAuthorization resolves the all_review_in_guest authorization.
// The deployment configuration decides whenever one was loaded, a training
// job cannot grant itself the strategy through the command line. The flag
// only covers local simulation runs without a config file.
func reviewAuthorization(tc *config.TrainerConf, flag bool) bool {
	if tc != nil {
		return tc.AllowReviewGuestOnly
	}
	return flag
}

func runParty(role session.Role, end transfer.Channel, params *config.TrainParams,
	features [][]float64, labels []float64) (*learner.TrainResult, error) {
	sess, err := session.NewSession(role, end)
	if err != nil {
		return nil, err
	}
	p := *params
	l, err := learner.NewLearner(sess, &p)
	if err != nil {
		return nil, err
	}
	return l.Fit(features, labels, nil)
}

func writeModel(m *model.Model, path string) error {
	bs, err := m.ToBytes()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Println(string(bs))
		return nil
	}
	if err := ioutil.WriteFile(path, bs, 0600); err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to write model file %s", path)
	}
	return nil
}

// readCsv loads a sample file with a header row and float cells
func readCsv(path string) ([]string, [][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errorx.NewCode(err, errcodes.ErrCodeParam, "failed to open sample file %s", path)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to parse sample file %s", path)
	}
	if len(records) < 2 {
		return nil, nil, errorx.New(errcodes.ErrCodeParam, "sample file %s has no data rows", path)
	}
	header := records[0]
	rows := make([][]float64, len(records)-1)
	for i, rec := range records[1:] {
		row := make([]float64, len(rec))
		for j, cell := range rec {
			if row[j], err = strconv.ParseFloat(cell, 64); err != nil {
				return nil, nil, errorx.NewCode(err, errcodes.ErrCodeEncoding,
					"bad cell %q at row %d of %s", cell, i+2, path)
			}
		}
		rows[i] = row
	}
	return header, rows, nil
}

// splitLabel pulls the label column out of the guest sample set
func splitLabel(header []string, rows [][]float64, name string) ([]string, [][]float64, []float64, error) {
	col := -1
	for j, h := range header {
		if h == name {
			col = j
			break
		}
	}
	if col < 0 {
		return nil, nil, nil, errorx.New(errcodes.ErrCodeParam, "label column %q not found", name)
	}
	outHeader := append(append([]string{}, header[:col]...), header[col+1:]...)
	outRows := make([][]float64, len(rows))
	labels := make([]float64, len(rows))
	for i, row := range rows {
		labels[i] = row[col]
		outRows[i] = append(append([]float64{}, row[:col]...), row[col+1:]...)
	}
	return outHeader, outRows, labels, nil
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVarP(&guestFile, "guestFile", "g", "", "csv with the guest features and the label column")
	trainCmd.Flags().StringVarP(&hostFile, "hostFile", "f", "", "csv with the host features")
	trainCmd.Flags().StringVarP(&labelName, "labelName", "l", "label", "name of the label column in the guest file")
	trainCmd.Flags().StringVar(&penalty, "penalty", "NONE", "regularization, L2 or NONE")
	trainCmd.Flags().Float64Var(&alpha, "alpha", 0, "regularization strength")
	trainCmd.Flags().StringVar(&optimizer, "optimizer", "sgd", "sgd or nesterov_momentum_sgd")
	trainCmd.Flags().Int64Var(&batchSize, "batchSize", -1, "mini batch size, -1 for the whole set")
	trainCmd.Flags().Float64Var(&learningRate, "learningRate", 0.01, "initial learning rate")
	trainCmd.Flags().IntVar(&maxIter, "maxIter", 100, "maximum number of epochs")
	trainCmd.Flags().StringVar(&earlyStop, "earlyStop", "diff", "convergence criterion, diff, abs or weight_diff")
	trainCmd.Flags().Float64Var(&tol, "tol", 1e-4, "convergence tolerance")
	trainCmd.Flags().BoolVar(&fitIntercept, "fitIntercept", false, "fit an intercept on the guest side")
	trainCmd.Flags().IntVar(&precision, "precision", -1, "fixed point fraction bits, -1 for the default")
	trainCmd.Flags().StringVar(&review, "review", "respectively", "review strategy, respectively or all_review_in_guest")
	trainCmd.Flags().BoolVar(&allowGuest, "allowReviewGuestOnly", false, "authorize the all_review_in_guest strategy")
	trainCmd.Flags().StringVar(&guestModelOut, "guestModelOut", "", "file for the guest model, stdout when empty")
	trainCmd.Flags().StringVar(&hostModelOut, "hostModelOut", "", "file for the host model, stdout when empty")

	trainCmd.MarkFlagRequired("guestFile")
	trainCmd.MarkFlagRequired("hostFile")
}
