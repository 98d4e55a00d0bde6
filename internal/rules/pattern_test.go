package rules

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aristath/seqflow/internal/manifest"
)

func testSamples() []manifest.Sample {
	return []manifest.Sample{
		{ID: "s1", Read1: "/in/s1_1.fq.gz", Read2: "/in/s1_2.fq.gz", Group: "ctrl"},
		{ID: "s2", Read1: "/in/s2_1.fq.gz", Read2: "/in/s2_2.fq.gz", Group: "treat"},
		{ID: "s3", Read1: "/in/s3_1.fq.gz", Read2: "/in/s3_2.fq.gz", Group: "ctrl"},
	}
}

func TestTemplatesResolve(t *testing.T) {
	samples := testSamples()
	ctrl := []manifest.Sample{samples[0], samples[2]}

	tests := []struct {
		name string
		tpl  Templates
		w    Wildcards
		want []string
	}{
		{
			name: "bound sample",
			tpl:  Templates{"{read1}", "out/{group}/{sample}.bam"},
			w:    Wildcards{Sample: &samples[1]},
			want: []string{"/in/s2_1.fq.gz", "out/treat/s2.bam"},
		},
		{
			name: "group fans in members in manifest order",
			tpl:  Templates{"dedup/{sample}.bam"},
			w:    Wildcards{Group: "ctrl", Samples: ctrl},
			want: []string{"dedup/s1.bam", "dedup/s3.bam"},
		},
		{
			name: "group only placeholder",
			tpl:  Templates{"merged/{group}.bam"},
			w:    Wildcards{Group: "ctrl", Samples: ctrl},
			want: []string{"merged/ctrl.bam"},
		},
		{
			name: "global over all groups",
			tpl:  Templates{"merged/{group}.bam"},
			w:    Wildcards{Samples: samples, Groups: []string{"ctrl", "treat"}},
			want: []string{"merged/ctrl.bam", "merged/treat.bam"},
		},
		{
			name: "global over all samples",
			tpl:  Templates{"qc/{sample}.zip"},
			w:    Wildcards{Samples: samples, Groups: []string{"ctrl", "treat"}},
			want: []string{"qc/s1.zip", "qc/s2.zip", "qc/s3.zip"},
		},
		{
			name: "fixed path and duplicates collapse",
			tpl:  Templates{"ref.fa", "ref.fa", "{group}.txt"},
			w:    Wildcards{Group: "treat"},
			want: []string{"ref.fa", "treat.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.tpl.Resolve(tt.w)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTemplatesResolve_UnknownPlaceholder(t *testing.T) {
	s := testSamples()[0]
	if _, err := (Templates{"x/{lane}.fq"}).Resolve(Wildcards{Sample: &s}); err == nil {
		t.Fatal("expected error for unknown placeholder")
	}
}
