// Copyright 2024 rescache Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"context"
	"fmt"
	"os"
)

// StartInBackground re-executes the current binary with args in a detached
// process and waits until isRunning reports true.
func StartInBackground(ctx context.Context, cfg PollConfig, isRunning func() bool, args []string) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	if _, err := StartBackgroundProcess(exe, args, nil); err != nil {
		return err
	}

	if err := PollUntil(ctx, cfg, isRunning); err != nil {
		return fmt.Errorf("daemon did not start in time")
	}
	return nil
}
