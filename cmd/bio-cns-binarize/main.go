// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/cns/reference"
)

func binarizeUsage() {
	fmt.Printf("Usage: %s [OPTIONS] fapath outpath\n", os.Args[0])
	flag.PrintDefaults()
}

func binarize(ctx context.Context, faPath, outPath string) (err error) {
	genome, err := reference.Load(ctx, faPath)
	if err != nil {
		return err
	}
	out, err := file.Create(ctx, outPath)
	if err != nil {
		return errors.E(err, "create", outPath)
	}
	defer file.CloseAndReport(ctx, out, &err)
	if err = reference.WritePacked(out.Writer(ctx), genome); err != nil {
		return errors.E(err, "write packed reference", outPath)
	}
	log.Printf("wrote %d chromosomes to %s", len(genome.Chromosomes()), outPath)
	return nil
}

func main() {
	flag.Usage = binarizeUsage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 2 {
		log.Fatalf("expected fapath and outpath, got %q", strings.Join(flag.Args(), " "))
	}
	outPath := flag.Arg(1)
	if !strings.HasSuffix(outPath, reference.PackedSuffix) {
		log.Printf("warning: %s does not end in %s; bio-cns will read it as FASTA", outPath, reference.PackedSuffix)
	}
	if err := binarize(vcontext.Background(), flag.Arg(0), outPath); err != nil {
		log.Fatalf("%v", err)
	}
}
