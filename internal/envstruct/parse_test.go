package envstruct_test

import (
	"strings"
	"testing"
	"time"

	"github.com/myrjola/compassmystery/internal/envstruct"
	"github.com/stretchr/testify/require"
)

func noEnv(_ string) (string, bool) { return "", false }

func TestPopulate(t *testing.T) {
	type args struct {
		v         any
		lookupEnv func(string) (string, bool)
	}
	tests := []struct {
		name    string
		args    args
		want    any
		wantErr error
	}{
		{
			name:    "nil",
			args:    args{v: nil, lookupEnv: noEnv},
			wantErr: envstruct.ErrInvalidValue,
		},
		{
			name:    "not pointer",
			args:    args{v: struct{}{}, lookupEnv: noEnv},
			wantErr: envstruct.ErrInvalidValue,
		},
		{
			name: "empty struct",
			args: args{v: &struct{}{}, lookupEnv: noEnv},
			want: &struct{}{},
		},
		{
			name: "empty env",
			args: args{
				v: &struct { //nolint:exhaustruct // populated later
					EnvVar string `env:"ENV_VAR"`
				}{},
				lookupEnv: noEnv,
			},
			wantErr: envstruct.ErrEnvNotSet,
		},
		{
			name: "picks correct env variable",
			args: args{
				v: &struct { //nolint:exhaustruct // populated later
					EnvVar     string `env:"ENV_VAR"`
					EnvVar2    string `env:"ENV_VAR2"`
					OtherValue string
				}{},
				lookupEnv: func(s string) (string, bool) { return strings.ToLower(s), true },
			},
			want: &struct {
				EnvVar     string `env:"ENV_VAR"`
				EnvVar2    string `env:"ENV_VAR2"`
				OtherValue string
			}{EnvVar: "env_var", EnvVar2: "env_var2", OtherValue: ""},
		},
		{
			name: "handles typed defaults",
			args: args{
				v: &struct { //nolint:exhaustruct // populated later
					Timeout time.Duration `env:"TIMEOUT" envDefault:"20s"`
					Retries int           `env:"RETRIES" envDefault:"3"`
					RPS     float64       `env:"RPS" envDefault:"2.5"`
					Debug   bool          `env:"DEBUG" envDefault:"true"`
				}{},
				lookupEnv: noEnv,
			},
			want: &struct {
				Timeout time.Duration `env:"TIMEOUT" envDefault:"20s"`
				Retries int           `env:"RETRIES" envDefault:"3"`
				RPS     float64       `env:"RPS" envDefault:"2.5"`
				Debug   bool          `env:"DEBUG" envDefault:"true"`
			}{Timeout: 20 * time.Second, Retries: 3, RPS: 2.5, Debug: true},
		},
		{
			name: "rejects unparsable int",
			args: args{
				v: &struct { //nolint:exhaustruct // populated later
					Retries int `env:"RETRIES"`
				}{},
				lookupEnv: func(_ string) (string, bool) { return "three", true },
			},
			wantErr: envstruct.ErrParse,
		},
		{
			name: "rejects unsupported types",
			args: args{
				v: &struct { //nolint:exhaustruct // populated later
					Values []string `env:"VALUES"`
				}{},
				lookupEnv: func(_ string) (string, bool) { return "a,b", true },
			},
			wantErr: envstruct.ErrInvalidValue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.args.v
			err := envstruct.Populate(v, tt.args.lookupEnv)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.EqualValues(t, tt.want, v)
		})
	}
}
