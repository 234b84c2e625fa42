/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
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

/*
Franz CLI - Command Line Interface.

COMMANDS:
=========

	produce <topic>    Append records read from stdin, or given with -m
	consume <topic>    Print records as they arrive; -g joins a group
	info <topic>       Show topic and broker details
	version            Show version information

EXAMPLES:
=========

	# Produce two records
	franz-cli produce orders -m "order-1" -m "order-2"

	# Pipe a file, one record per line
	franz-cli produce orders < orders.txt

	# Consume as group 3, stop after 10 records
	franz-cli consume orders -g 3 -n 10

	# Inspect a topic without creating it
	franz-cli info orders
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"franz/pkg/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRoot().ExecuteContext(ctx); err != nil {
		cli.ErrorWithHint(err.Error(), hintFor(err))
		stop()
		os.Exit(1)
	}
}
