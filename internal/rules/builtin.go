package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aristath/seqflow/internal/backend"
	"github.com/aristath/seqflow/internal/config"
)

// TrimStrategy selects the trimming rule variant. It is decided once, when
// the builtin rules are registered, and never per task.
type TrimStrategy int

const (
	TrimSingleEnd TrimStrategy = iota
	TrimPairedEnd
)

func (s TrimStrategy) String() string {
	if s == TrimPairedEnd {
		return "paired-end"
	}
	return "single-end"
}

// SelectTrim picks the trimming variant for a read layout.
func SelectTrim(pairedEnd bool) TrimStrategy {
	if pairedEnd {
		return TrimPairedEnd
	}
	return TrimSingleEnd
}

// Output layout of the builtin rules, relative to the working directory.
const (
	umiR1       = "umi/{sample}_R1.fastq.gz"
	umiR2       = "umi/{sample}_R2.fastq.gz"
	trimR1      = "trimmed/{sample}_R1.fastq.gz"
	trimR2      = "trimmed/{sample}_R2.fastq.gz"
	alignPrefix = "aligned/{sample}."
	alignedBAM  = alignPrefix + "Aligned.sortedByCoord.out.bam"
	alignedBAI  = alignedBAM + ".bai"
	geneCounts  = alignPrefix + "ReadsPerGene.out.tab"
	alignLog    = alignPrefix + "Log.final.out"
	dedupBAM    = "dedup/{sample}.bam"
	mergedBAM   = "merged/{group}.bam"
	variantsVCF = "variants/{group}.vcf"
	reportHTML  = "report/multiqc_report.html"
)

// Builtin returns a catalog holding the RNA-seq rule set: UMI extraction,
// read QC, trimming, alignment, indexing, deduplication, per-group merging,
// optional per-group variant calling and a global QC report.
func Builtin(cfg *config.PipelineConfig) (*Catalog, error) {
	cat := NewCatalog(ToolsFromConfig(cfg))
	if err := RegisterBuiltin(cat, cfg); err != nil {
		return nil, err
	}
	return cat, nil
}

// RegisterBuiltin adds the builtin rules to an existing catalog.
func RegisterBuiltin(cat *Catalog, cfg *config.PipelineConfig) error {
	p := cfg.Params
	paired := cfg.PairedEnd()
	cat.Trim = SelectTrim(paired)

	templates := []*RuleTemplate{
		umiExtractRule(p, paired),
		fastqcRule(paired),
		trimRule(p, cat.Trim),
		alignRule(p, paired),
		indexRule(),
		dedupRule(paired),
		mergeRule(),
	}
	if p.Reference != "" {
		samtools := cfg.Tools["samtools"].Command
		templates = append(templates, callVariantsRule(p, samtools))
	}
	templates = append(templates, multiqcRule(paired))

	for _, t := range templates {
		if err := cat.Register(t); err != nil {
			return fmt.Errorf("registering builtin rule: %w", err)
		}
	}
	return nil
}

func itoa(n int) string { return strconv.Itoa(n) }

func reads(paired bool, r1, r2 string) Templates {
	if paired {
		return Templates{r1, r2}
	}
	return Templates{r1}
}

// umiExtractRule moves the UMI into the read name. With the UMI on read 2
// the mates are swapped so the barcode pattern applies to the right read.
func umiExtractRule(p config.ParamsConfig, paired bool) *RuleTemplate {
	return &RuleTemplate{
		Name:    "umi_extract",
		Scope:   ScopeSample,
		Tool:    "umi_tools",
		Inputs:  reads(paired, "{read1}", "{read2}"),
		Outputs: reads(paired, umiR1, umiR2),
		Params: map[string]string{
			"umi_location": p.UMILocation,
			"umi_length":   itoa(p.UMILength),
		},
		Resources: Resources{Threads: 1},
		Command: func(b Binding) (backend.Command, error) {
			pattern := "--bc-pattern=" + strings.Repeat("N", atoiOr(b.Params["umi_length"], 12))
			if len(b.Inputs) == 1 {
				return backend.Command{Program: b.Tool.Command, Args: []string{
					"extract", pattern, "--stdin=" + b.Inputs[0], "--stdout=" + b.Outputs[0],
				}}, nil
			}
			in1, in2, out1, out2 := b.Inputs[0], b.Inputs[1], b.Outputs[0], b.Outputs[1]
			if b.Params["umi_location"] == "read2" {
				in1, in2, out1, out2 = in2, in1, out2, out1
			}
			return backend.Command{Program: b.Tool.Command, Args: []string{
				"extract", pattern,
				"--stdin=" + in1, "--read2-in=" + in2,
				"--stdout=" + out1, "--read2-out=" + out2,
			}}, nil
		},
	}
}

func fastqcRule(paired bool) *RuleTemplate {
	outputs := Templates{"qc/{sample}_R1_fastqc.html", "qc/{sample}_R1_fastqc.zip"}
	if paired {
		outputs = append(outputs, "qc/{sample}_R2_fastqc.html", "qc/{sample}_R2_fastqc.zip")
	}
	return &RuleTemplate{
		Name:      "fastqc",
		Scope:     ScopeSample,
		Tool:      "fastqc",
		Inputs:    reads(paired, umiR1, umiR2),
		Outputs:   outputs,
		Resources: Resources{Threads: 2},
		Command:   Argv("{tool}", "--quiet", "--threads", "{threads}", "--outdir", "qc", "{i}"),
	}
}

func trimRule(p config.ParamsConfig, strategy TrimStrategy) *RuleTemplate {
	t := &RuleTemplate{
		Name:  "trim",
		Scope: ScopeSample,
		Tool:  "cutadapt",
		Params: map[string]string{
			"adapter":         p.Adapter,
			"quality":         itoa(p.TrimQuality),
			"min_length":      itoa(p.TrimMinLength),
			"max_read_length": itoa(p.MaxReadLength),
			"layout":          strategy.String(),
		},
		Resources: Resources{Threads: 4},
	}

	common := func(b Binding) []string {
		args := []string{"-j", itoa(b.Threads), "-q", b.Params["quality"], "-m", b.Params["min_length"]}
		if b.Params["max_read_length"] != "0" {
			args = append(args, "--length", b.Params["max_read_length"])
		}
		return args
	}

	switch strategy {
	case TrimPairedEnd:
		t.Inputs = Templates{umiR1, umiR2}
		t.Outputs = Templates{trimR1, trimR2}
		t.Command = func(b Binding) (backend.Command, error) {
			args := append(common(b),
				"-a", b.Params["adapter"], "-A", b.Params["adapter"],
				"-o", b.Outputs[0], "-p", b.Outputs[1], b.Inputs[0], b.Inputs[1])
			return backend.Command{Program: b.Tool.Command, Args: args}, nil
		}
	default:
		t.Inputs = Templates{umiR1}
		t.Outputs = Templates{trimR1}
		t.Command = func(b Binding) (backend.Command, error) {
			args := append(common(b), "-a", b.Params["adapter"], "-o", b.Outputs[0], b.Inputs[0])
			return backend.Command{Program: b.Tool.Command, Args: args}, nil
		}
	}
	return t
}

func alignRule(p config.ParamsConfig, paired bool) *RuleTemplate {
	return &RuleTemplate{
		Name:    "align",
		Scope:   ScopeSample,
		Tool:    "STAR",
		Inputs:  reads(paired, trimR1, trimR2),
		Outputs: Templates{alignedBAM, geneCounts, alignLog},
		Params: map[string]string{
			"genome_dir":      p.GenomeDir,
			"annotation":      p.Annotation,
			"max_read_length": itoa(p.MaxReadLength),
		},
		Resources: Resources{Threads: 8, Exclusive: []string{"star-genome"}},
		Command: func(b Binding) (backend.Command, error) {
			prefix := strings.TrimSuffix(b.Outputs[0], "Aligned.sortedByCoord.out.bam")
			args := []string{
				"--runThreadN", itoa(b.Threads),
				"--genomeDir", b.Params["genome_dir"],
				"--sjdbGTFfile", b.Params["annotation"],
				"--readFilesIn",
			}
			args = append(args, b.Inputs...)
			args = append(args,
				"--readFilesCommand", "zcat",
				"--outFileNamePrefix", prefix,
				"--outSAMtype", "BAM", "SortedByCoordinate",
				"--quantMode", "GeneCounts",
			)
			if n := atoiOr(b.Params["max_read_length"], 0); n > 1 {
				args = append(args, "--sjdbOverhang", itoa(n-1))
			}
			return backend.Command{Program: b.Tool.Command, Args: args}, nil
		},
	}
}

func indexRule() *RuleTemplate {
	return &RuleTemplate{
		Name:      "index",
		Scope:     ScopeSample,
		Tool:      "samtools",
		Inputs:    Templates{alignedBAM},
		Outputs:   Templates{alignedBAI},
		Resources: Resources{Threads: 1},
		Command:   Argv("{tool}", "index", "{i:0}", "{o:0}"),
	}
}

func dedupRule(paired bool) *RuleTemplate {
	return &RuleTemplate{
		Name:      "dedup",
		Scope:     ScopeSample,
		Tool:      "umi_tools",
		Inputs:    Templates{alignedBAM, alignedBAI},
		Outputs:   Templates{dedupBAM},
		Params:    map[string]string{"paired": strconv.FormatBool(paired)},
		Resources: Resources{Threads: 1},
		Command: func(b Binding) (backend.Command, error) {
			args := []string{"dedup", "--stdin=" + b.Inputs[0], "--stdout=" + b.Outputs[0]}
			if b.Params["paired"] == "true" {
				args = append(args, "--paired")
			}
			return backend.Command{Program: b.Tool.Command, Args: args}, nil
		},
	}
}

// mergeRule fans in the deduplicated alignments of every member of a group.
func mergeRule() *RuleTemplate {
	return &RuleTemplate{
		Name:      "merge",
		Scope:     ScopeGroup,
		Tool:      "samtools",
		Inputs:    Templates{dedupBAM},
		Outputs:   Templates{mergedBAM},
		Resources: Resources{Threads: 4},
		Command:   Argv("{tool}", "merge", "-f", "-@", "{threads}", "{o:0}", "{i}"),
	}
}

// callVariantsRule pipes a pileup into VarScan, so it runs through sh.
func callVariantsRule(p config.ParamsConfig, samtools string) *RuleTemplate {
	return &RuleTemplate{
		Name:    "call_variants",
		Scope:   ScopeGroup,
		Tool:    "varscan",
		Inputs:  Templates{mergedBAM, p.Reference},
		Outputs: Templates{variantsVCF},
		Params: map[string]string{
			"samtools":             samtools,
			"min_coverage":         itoa(p.MinCoverage),
			"min_variant_fraction": strconv.FormatFloat(p.MinVariantFraction, 'g', -1, 64),
			"min_base_quality":     itoa(p.MinBaseQuality),
		},
		Resources: Resources{Threads: 1},
		Command: func(b Binding) (backend.Command, error) {
			script := fmt.Sprintf("%s mpileup -f %s -Q %s %s | %s mpileup2snp --min-coverage %s --min-var-freq %s --min-avg-qual %s --output-vcf 1 > %s",
				shellQuote(b.Params["samtools"]), shellQuote(b.Inputs[1]), b.Params["min_base_quality"], shellQuote(b.Inputs[0]),
				shellQuote(b.Tool.Command), b.Params["min_coverage"], b.Params["min_variant_fraction"], b.Params["min_base_quality"],
				shellQuote(b.Outputs[0]))
			return backend.Command{Program: "sh", Args: []string{"-c", script}}, nil
		},
	}
}

func multiqcRule(paired bool) *RuleTemplate {
	inputs := Templates{"qc/{sample}_R1_fastqc.zip"}
	if paired {
		inputs = append(inputs, "qc/{sample}_R2_fastqc.zip")
	}
	inputs = append(inputs, alignLog)
	return &RuleTemplate{
		Name:      "multiqc",
		Scope:     ScopeGlobal,
		Tool:      "multiqc",
		Inputs:    inputs,
		Outputs:   Templates{reportHTML},
		Resources: Resources{Threads: 1},
		Command:   Argv("{tool}", "--force", "--outdir", "report", "--filename", "multiqc_report.html", "qc", "aligned"),
	}
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
