// Copyright (C) The CoexNet Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"github.com/coexnet/coexnet"
)

func main() {
	coexnet.Main()
}
