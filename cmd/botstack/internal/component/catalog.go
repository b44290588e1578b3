// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package component

// Component names referenced by the bootstrap sequence.
const (
	Secrets     = "secrets"
	Tables      = "tables"
	Directory   = "directory"
	Drive       = "drive"
	Cache       = "cache"
	LLM         = "llm"
	VectorDB    = "vector_db"
	Email       = "email"
	Proxy       = "proxy"
	DNS         = "dns"
	Meet        = "meet"
	ALM         = "alm"
	ALMCI       = "alm-ci"
	Timeseries  = "timeseries_db"
	Observation = "observability"
)

// RequiredComponents is the bootstrap set, in bring-up order.
var RequiredComponents = []string{Secrets, Tables, Directory, Drive, Cache, LLM, VectorDB}

// Well-known ports used outside command templates.
const (
	SecretsPort   = 8200
	TablesPort    = 5432
	DirectoryPort = 8080
	DrivePort     = 9000
	CachePort     = 6379
)

const certDir = "{{CONF_PATH}}/system/certificates"

// Catalog returns the built-in component descriptors.
//
// Every call returns fresh values; callers may modify them before handing
// them to NewRegistry.
func Catalog() []Descriptor {
	return []Descriptor{
		secretsDescriptor(),
		tablesDescriptor(),
		cacheDescriptor(),
		driveDescriptor(),
		llmDescriptor(),
		emailDescriptor(),
		proxyDescriptor(),
		directoryDescriptor(),
		almDescriptor(),
		almCIDescriptor(),
		dnsDescriptor(),
		webmailDescriptor(),
		meetDescriptor(),
		tableEditorDescriptor(),
		docEditorDescriptor(),
		remoteTerminalDescriptor(),
		devtoolsDescriptor(),
		vectorDBDescriptor(),
		timeseriesDescriptor(),
		observabilityDescriptor(),
		hostDescriptor(),
	}
}

func secretsDescriptor() Descriptor {
	return Descriptor{
		Name:        Secrets,
		Ports:       []int{SecretsPort},
		DownloadURL: "https://releases.hashicorp.com/vault/1.15.4/vault_1.15.4_linux_amd64.zip",
		BinaryName:  "vault",
		PreInstall: map[OS][]string{
			Linux: {"mkdir -p {{DATA_PATH}}/vault {{CONF_PATH}}/vault"},
			MacOS: {"mkdir -p {{DATA_PATH}}/vault {{CONF_PATH}}/vault"},
		},
		Env: map[string]string{
			"VAULT_ADDR":   "https://localhost:8200",
			"VAULT_CACERT": certDir + "/ca/ca.crt",
		},
		ExecCmd:        "nohup {{BIN_PATH}}/vault server -config={{CONF_PATH}}/vault/config.hcl > {{LOGS_PATH}}/vault.log 2>&1 &",
		CheckCmd:       `curl -sf --cacert ` + certDir + `/ca/ca.crt "https://localhost:8200/v1/sys/health?standbyok=true&uninitcode=200&sealedcode=200" >/dev/null 2>&1`,
		ProcessPattern: "{{BIN_PATH}}/vault server",
	}
}

func tablesDescriptor() Descriptor {
	conf := "{{CONF_PATH}}/tables/postgresql.conf"
	return Descriptor{
		Name:        Tables,
		Ports:       []int{TablesPort},
		DownloadURL: "https://github.com/theseus-rs/postgresql-binaries/releases/download/18.0.0/postgresql-18.0.0-x86_64-unknown-linux-gnu.tar.gz",
		BinaryName:  "postgres",
		PreInstall: map[OS][]string{
			Linux: {"mkdir -p {{CONF_PATH}}/tables"},
			MacOS: {"mkdir -p {{CONF_PATH}}/tables"},
		},
		PostInstall: map[OS][]string{
			Linux: {
				"chmod +x {{BIN_PATH}}/bin/*",
				`if [ ! -d "{{DATA_PATH}}/pgdata" ]; then umask 077; printf '%s' '{{DB_PASSWORD}}' > {{DATA_PATH}}/.pwfile && {{BIN_PATH}}/bin/initdb -D {{DATA_PATH}}/pgdata -U gbuser --auth=scram-sha-256 --pwfile={{DATA_PATH}}/.pwfile; rc=$?; rm -f {{DATA_PATH}}/.pwfile; exit $rc; fi`,
				`echo "data_directory = '{{DATA_PATH}}/pgdata'" > ` + conf,
				`echo "hba_file = '{{CONF_PATH}}/tables/pg_hba.conf'" >> ` + conf,
				`echo "ident_file = '{{CONF_PATH}}/tables/pg_ident.conf'" >> ` + conf,
				`echo "port = 5432" >> ` + conf,
				`echo "listen_addresses = '*'" >> ` + conf,
				`echo "ssl = on" >> ` + conf,
				`echo "ssl_cert_file = '` + certDir + `/postgres/server.crt'" >> ` + conf,
				`echo "ssl_key_file = '` + certDir + `/postgres/server.key'" >> ` + conf,
				`echo "ssl_ca_file = '` + certDir + `/ca/ca.crt'" >> ` + conf,
				`echo "log_directory = '{{LOGS_PATH}}'" >> ` + conf,
				`echo "logging_collector = on" >> ` + conf,
				`echo "hostssl all all all scram-sha-256" > {{CONF_PATH}}/tables/pg_hba.conf`,
				"touch {{CONF_PATH}}/tables/pg_ident.conf",
			},
			MacOS: {
				"chmod +x {{BIN_PATH}}/bin/*",
				`if [ ! -d "{{DATA_PATH}}/pgdata" ]; then {{BIN_PATH}}/bin/initdb -A trust -D {{DATA_PATH}}/pgdata -U gbuser; fi`,
			},
		},
		ExecCmd:        `{{BIN_PATH}}/bin/pg_ctl -D {{DATA_PATH}}/pgdata -o "-c config_file=` + conf + `" -l {{LOGS_PATH}}/postgres.log start -w -t 30 > {{LOGS_PATH}}/stdout.log 2>&1 &`,
		CheckCmd:       "{{BIN_PATH}}/bin/pg_isready -h localhost -p 5432 -U gbuser >/dev/null 2>&1",
		ProcessPattern: "{{BIN_PATH}}/bin/postgres",
	}
}

func cacheDescriptor() Descriptor {
	return Descriptor{
		Name:        Cache,
		Ports:       []int{CachePort},
		DownloadURL: "https://download.valkey.io/releases/valkey-8.1.3-jammy-x86_64.tar.gz",
		BinaryName:  "valkey-server",
		Env: map[string]string{
			"CACHE_PASSWORD": "$CACHE_PASSWORD",
		},
		ExecCmd: `{{BIN_PATH}}/bin/valkey-server --port 0 --tls-port 6379 --tls-auth-clients no` +
			` --tls-cert-file ` + certDir + `/redis/server.crt` +
			` --tls-key-file ` + certDir + `/redis/server.key` +
			` --tls-ca-cert-file ` + certDir + `/ca/ca.crt` +
			` --requirepass "$CACHE_PASSWORD" --dir {{DATA_PATH}} --daemonize yes --logfile {{LOGS_PATH}}/cache.log`,
		CheckCmd:       "ps -ef | grep valkey-server | grep -v grep | grep -q {{BIN_PATH}}",
		ProcessPattern: "{{BIN_PATH}}/bin/valkey-server",
	}
}

func driveDescriptor() Descriptor {
	return Descriptor{
		Name:        Drive,
		Ports:       []int{9000, 9001},
		DownloadURL: "https://dl.min.io/server/minio/release/linux-amd64/minio",
		BinaryName:  "minio",
		PostInstall: map[OS][]string{
			Linux: {
				"mkdir -p " + certDir + "/minio/CAs",
				"cd " + certDir + "/minio && ln -sf server.crt public.crt && ln -sf server.key private.key && ln -sf ../ca/ca.crt CAs/ca.crt",
			},
		},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "$DRIVE_ACCESSKEY",
			"MINIO_ROOT_PASSWORD": "$DRIVE_SECRET",
		},
		ExecCmd:        "nohup {{BIN_PATH}}/minio server {{DATA_PATH}} --address :9000 --console-address :9001 --certs-dir " + certDir + "/minio > {{LOGS_PATH}}/minio.log 2>&1 &",
		CheckCmd:       "ps -ef | grep minio | grep -v grep | grep -q {{BIN_PATH}}",
		ProcessPattern: "{{BIN_PATH}}/minio server",
	}
}

func llmDescriptor() Descriptor {
	server := "{{BIN_PATH}}/build/bin/llama-server"
	return Descriptor{
		Name:        LLM,
		Ports:       []int{8081, 8082},
		DownloadURL: "https://github.com/ggml-org/llama.cpp/releases/download/b6148/llama-b6148-bin-ubuntu-x64.zip",
		BinaryName:  "llama-server",
		DataDownloads: []string{
			"https://huggingface.co/bartowski/DeepSeek-R1-Distill-Qwen-1.5B-GGUF/resolve/main/DeepSeek-R1-Distill-Qwen-1.5B-Q3_K_M.gguf",
			"https://huggingface.co/CompendiumLabs/bge-small-en-v1.5-gguf/resolve/main/bge-small-en-v1.5-f32.gguf",
		},
		ExecCmd: "nohup " + server + " --port 8081" +
			" --ssl-key-file " + certDir + "/llm/server.key --ssl-cert-file " + certDir + "/llm/server.crt" +
			" -m {{DATA_PATH}}/DeepSeek-R1-Distill-Qwen-1.5B-Q3_K_M.gguf > {{LOGS_PATH}}/llm.log 2>&1 &" +
			" nohup " + server + " --port 8082" +
			" --ssl-key-file " + certDir + "/embedding/server.key --ssl-cert-file " + certDir + "/embedding/server.crt" +
			" -m {{DATA_PATH}}/bge-small-en-v1.5-f32.gguf --embedding > {{LOGS_PATH}}/embedding.log 2>&1 &",
		CheckCmd:       "curl -sf -k https://localhost:8081/health >/dev/null 2>&1 && curl -sf -k https://localhost:8082/health >/dev/null 2>&1",
		ProcessPattern: server,
	}
}

func emailDescriptor() Descriptor {
	return Descriptor{
		Name:        Email,
		Ports:       []int{25, 143, 465, 993, 8025},
		DownloadURL: "https://github.com/stalwartlabs/mail-server/releases/download/v0.10.7/stalwart-mail-x86_64-linux.tar.gz",
		BinaryName:  "stalwart-mail",
		PreInstall: map[OS][]string{
			Linux: {"mkdir -p {{CONF_PATH}}/email"},
		},
		Env: map[string]string{
			"STALWART_TLS_ENABLE": "true",
			"STALWART_TLS_CERT":   certDir + "/email/server.crt",
			"STALWART_TLS_KEY":    certDir + "/email/server.key",
		},
		ExecCmd:        "nohup {{BIN_PATH}}/stalwart-mail --config {{CONF_PATH}}/email/config.toml > {{LOGS_PATH}}/email.log 2>&1 &",
		CheckCmd:       "curl -sf -k https://localhost:8025/health >/dev/null 2>&1",
		ProcessPattern: "{{BIN_PATH}}/stalwart-mail",
		Optional:       true,
	}
}

func proxyDescriptor() Descriptor {
	return Descriptor{
		Name:        Proxy,
		Ports:       []int{80, 443},
		DownloadURL: "https://github.com/caddyserver/caddy/releases/download/v2.10.0/caddy_2.10.0_linux_amd64.tar.gz",
		BinaryName:  "caddy",
		PostInstall: map[OS][]string{
			Linux: {"setcap 'cap_net_bind_service=+ep' {{BIN_PATH}}/caddy"},
		},
		Env: map[string]string{
			"XDG_DATA_HOME": "{{DATA_PATH}}",
		},
		ExecCmd:        "nohup {{BIN_PATH}}/caddy run --config {{CONF_PATH}}/Caddyfile --adapter caddyfile > {{LOGS_PATH}}/caddy.log 2>&1 &",
		CheckCmd:       "curl -sf http://localhost >/dev/null 2>&1",
		ProcessPattern: "{{BIN_PATH}}/caddy run",
		Optional:       true,
	}
}

func directoryDescriptor() Descriptor {
	return Descriptor{
		Name:         Directory,
		Ports:        []int{DirectoryPort},
		Dependencies: []string{Tables},
		DownloadURL:  "https://github.com/zitadel/zitadel/releases/download/v2.70.4/zitadel-linux-amd64.tar.gz",
		BinaryName:   "zitadel",
		PreInstall: map[OS][]string{
			Linux: {"mkdir -p {{CONF_PATH}}/directory"},
			MacOS: {"mkdir -p {{CONF_PATH}}/directory"},
		},
		Env: map[string]string{
			"ZITADEL_MASTERKEY":      "$DIRECTORY_MASTERKEY",
			"ZITADEL_EXTERNALSECURE": "true",
			"ZITADEL_TLS_ENABLED":    "true",
			"ZITADEL_TLS_CERTPATH":   certDir + "/directory/server.crt",
			"ZITADEL_TLS_KEYPATH":    certDir + "/directory/server.key",
		},
		ExecCmd: "nohup {{BIN_PATH}}/zitadel start-from-init --config {{CONF_PATH}}/directory/zitadel.yaml" +
			" --steps {{CONF_PATH}}/directory/steps.yaml --masterkeyFromEnv --tlsMode enabled > {{LOGS_PATH}}/zitadel.log 2>&1 &",
		CheckCmd:       "curl -sf --cacert " + certDir + "/ca/ca.crt https://localhost:8080/debug/healthz >/dev/null 2>&1",
		ProcessPattern: "{{BIN_PATH}}/zitadel start",
	}
}

func almDescriptor() Descriptor {
	return Descriptor{
		Name:        ALM,
		Ports:       []int{3000},
		DownloadURL: "https://codeberg.org/forgejo/forgejo/releases/download/v10.0.2/forgejo-10.0.2-linux-amd64",
		BinaryName:  "forgejo",
		Env: map[string]string{
			"USER": "alm",
			"HOME": "{{DATA_PATH}}",
		},
		ExecCmd: "nohup {{BIN_PATH}}/forgejo web --work-path {{DATA_PATH}} --port 3000" +
			" --cert " + certDir + "/alm/server.crt --key " + certDir + "/alm/server.key > {{LOGS_PATH}}/forgejo.log 2>&1 &",
		CheckCmd:       "curl -sf -k https://localhost:3000 >/dev/null 2>&1",
		ProcessPattern: "{{BIN_PATH}}/forgejo web",
		Optional:       true,
	}
}

func almCIDescriptor() Descriptor {
	return Descriptor{
		Name:         ALMCI,
		Dependencies: []string{ALM},
		Packages: map[OS][]string{
			MacOS: {"git", "node"},
		},
		DownloadURL: "https://code.forgejo.org/forgejo/runner/releases/download/v6.3.1/forgejo-runner-6.3.1-linux-amd64",
		BinaryName:  "forgejo-runner",
		PreInstall: map[OS][]string{
			Linux: {"mkdir -p {{CONF_PATH}}/alm-ci"},
		},
		PostInstall: map[OS][]string{
			Linux: {
				"echo 'Register the runner with: {{BIN_PATH}}/forgejo-runner register --instance $ALM_URL --token $ALM_RUNNER_TOKEN --name gbo --labels ubuntu-latest:docker://node:20-bookworm'",
			},
		},
		Env: map[string]string{
			"ALM_URL":          "$ALM_URL",
			"ALM_RUNNER_TOKEN": "$ALM_RUNNER_TOKEN",
		},
		ExecCmd:        "nohup {{BIN_PATH}}/forgejo-runner daemon --config {{CONF_PATH}}/alm-ci/config.yaml > {{LOGS_PATH}}/runner.log 2>&1 &",
		CheckCmd:       "ps -ef | grep forgejo-runner | grep -v grep | grep -q {{BIN_PATH}}",
		ProcessPattern: "{{BIN_PATH}}/forgejo-runner daemon",
		Optional:       true,
	}
}

func dnsDescriptor() Descriptor {
	return Descriptor{
		Name:        DNS,
		Ports:       []int{53},
		DownloadURL: "https://github.com/coredns/coredns/releases/download/v1.11.1/coredns_1.11.1_linux_amd64.tgz",
		BinaryName:  "coredns",
		PreInstall: map[OS][]string{
			Linux: {"mkdir -p {{CONF_PATH}}/dns"},
		},
		PostInstall: map[OS][]string{
			Linux: {"setcap 'cap_net_bind_service=+ep' {{BIN_PATH}}/coredns"},
		},
		ExecCmd:        "nohup {{BIN_PATH}}/coredns -conf {{CONF_PATH}}/dns/Corefile > {{LOGS_PATH}}/dns.log 2>&1 &",
		CheckCmd:       "dig @localhost botserver.local >/dev/null 2>&1",
		ProcessPattern: "{{BIN_PATH}}/coredns",
		Optional:       true,
	}
}

func webmailDescriptor() Descriptor {
	return Descriptor{
		Name:         "webmail",
		Ports:        []int{8088},
		Dependencies: []string{Email},
		Packages: map[OS][]string{
			Linux: {"ca-certificates", "apt-transport-https", "php8.1", "php8.1-fpm"},
			MacOS: {"php"},
		},
		DownloadURL:    "https://github.com/roundcube/roundcubemail/releases/download/1.6.6/roundcubemail-1.6.6-complete.tar.gz",
		ExecCmd:        "nohup php -S 0.0.0.0:8088 -t {{BIN_PATH}} > {{LOGS_PATH}}/webmail.log 2>&1 &",
		CheckCmd:       "curl -sf http://localhost:8088 >/dev/null 2>&1",
		ProcessPattern: "php -S 0.0.0.0:8088",
		Optional:       true,
	}
}

func meetDescriptor() Descriptor {
	return Descriptor{
		Name:        Meet,
		Ports:       []int{7880},
		DownloadURL: "https://github.com/livekit/livekit/releases/download/v2.8.2/livekit_2.8.2_linux_amd64.tar.gz",
		BinaryName:  "livekit-server",
		PreInstall: map[OS][]string{
			Linux: {"mkdir -p {{CONF_PATH}}/meet"},
		},
		ExecCmd: "nohup {{BIN_PATH}}/livekit-server --config {{CONF_PATH}}/meet/config.yaml" +
			" --key-file " + certDir + "/meet/server.key --cert-file " + certDir + "/meet/server.crt > {{LOGS_PATH}}/meet.log 2>&1 &",
		CheckCmd:       "curl -sf -k https://localhost:7880 >/dev/null 2>&1",
		ProcessPattern: "{{BIN_PATH}}/livekit-server",
		Optional:       true,
	}
}

func tableEditorDescriptor() Descriptor {
	return Descriptor{
		Name:           "table_editor",
		Ports:          []int{5757},
		Dependencies:   []string{Tables},
		DownloadURL:    "http://get.nocodb.com/linux-x64",
		BinaryName:     "nocodb",
		ExecCmd:        "nohup {{BIN_PATH}}/nocodb > {{LOGS_PATH}}/nocodb.log 2>&1 &",
		CheckCmd:       "curl -sf http://localhost:5757 >/dev/null 2>&1",
		ProcessPattern: "{{BIN_PATH}}/nocodb",
		Optional:       true,
	}
}

func docEditorDescriptor() Descriptor {
	return Descriptor{
		Name:  "doc_editor",
		Ports: []int{9980},
		Packages: map[OS][]string{
			Linux: {"coolwsd", "code-brand"},
		},
		BinaryName:     "coolwsd",
		ExecCmd:        "nohup coolwsd --config-file={{CONF_PATH}}/coolwsd.xml > {{LOGS_PATH}}/coolwsd.log 2>&1 &",
		CheckCmd:       "curl -sf -k https://localhost:9980 >/dev/null 2>&1",
		ProcessPattern: "coolwsd --config-file",
		Optional:       true,
	}
}

func remoteTerminalDescriptor() Descriptor {
	return Descriptor{
		Name:  "remote_terminal",
		Ports: []int{3389},
		Packages: map[OS][]string{
			Linux: {"xvfb", "xrdp", "xfce4"},
		},
		ExecCmd:        "nohup xrdp --nodaemon > {{LOGS_PATH}}/xrdp.log 2>&1 &",
		CheckCmd:       "netstat -tln | grep -q :3389",
		ProcessPattern: "xrdp --nodaemon",
		Optional:       true,
	}
}

func devtoolsDescriptor() Descriptor {
	return Descriptor{
		Name: "devtools",
		Packages: map[OS][]string{
			Linux: {"xclip", "git", "curl"},
			MacOS: {"git"},
		},
		Optional: true,
	}
}

func vectorDBDescriptor() Descriptor {
	return Descriptor{
		Name:        VectorDB,
		Ports:       []int{6333, 6334},
		DownloadURL: "https://github.com/qdrant/qdrant/releases/download/v1.12.4/qdrant-x86_64-unknown-linux-gnu.tar.gz",
		BinaryName:  "qdrant",
		PreInstall: map[OS][]string{
			Linux: {"mkdir -p {{CONF_PATH}}/vector_db"},
		},
		ExecCmd:        "nohup {{BIN_PATH}}/qdrant --config-path {{CONF_PATH}}/vector_db/config.yaml > {{LOGS_PATH}}/qdrant.log 2>&1 &",
		CheckCmd:       "curl -sf -k https://localhost:6333/readyz >/dev/null 2>&1",
		ProcessPattern: "{{BIN_PATH}}/qdrant",
	}
}

func timeseriesDescriptor() Descriptor {
	return Descriptor{
		Name:        Timeseries,
		Ports:       []int{8086},
		DownloadURL: "https://download.influxdata.com/influxdb/releases/influxdb2-2.7.5-linux-amd64.tar.gz",
		BinaryName:  "influxd",
		PreInstall: map[OS][]string{
			Linux: {"mkdir -p {{DATA_PATH}}/influxdb {{CONF_PATH}}/influxdb"},
			MacOS: {"mkdir -p {{DATA_PATH}}/influxdb"},
		},
		Env: map[string]string{
			"INFLUXD_ENGINE_PATH":        "{{DATA_PATH}}/influxdb/engine",
			"INFLUXD_BOLT_PATH":          "{{DATA_PATH}}/influxdb/influxd.bolt",
			"INFLUXD_HTTP_BIND_ADDRESS":  ":8086",
			"INFLUXD_REPORTING_DISABLED": "true",
		},
		ExecCmd:        "nohup {{BIN_PATH}}/usr/bin/influxd > {{LOGS_PATH}}/influxd.log 2>&1 &",
		CheckCmd:       "curl -sf http://localhost:8086/health >/dev/null 2>&1",
		ProcessPattern: "{{BIN_PATH}}/usr/bin/influxd",
		Optional:       true,
	}
}

func observabilityDescriptor() Descriptor {
	return Descriptor{
		Name:         Observation,
		Ports:        []int{8686},
		Dependencies: []string{Timeseries},
		DownloadURL:  "https://packages.timber.io/vector/0.35.0/vector-0.35.0-x86_64-unknown-linux-gnu.tar.gz",
		BinaryName:   "vector",
		PreInstall: map[OS][]string{
			Linux: {"mkdir -p {{CONF_PATH}}/monitoring {{DATA_PATH}}/vector"},
			MacOS: {"mkdir -p {{CONF_PATH}}/monitoring {{DATA_PATH}}/vector"},
		},
		ExecCmd:        "nohup {{BIN_PATH}}/bin/vector --config {{CONF_PATH}}/monitoring/vector.toml > {{LOGS_PATH}}/vector.log 2>&1 &",
		CheckCmd:       "curl -sf http://localhost:8686/health >/dev/null 2>&1",
		ProcessPattern: "{{BIN_PATH}}/bin/vector",
		Optional:       true,
	}
}

func hostDescriptor() Descriptor {
	return Descriptor{
		Name: "host",
		Packages: map[OS][]string{
			Linux: {"sshfs", "bridge-utils"},
		},
		PreInstall: map[OS][]string{
			Linux: {
				"grep -q '^net.ipv4.ip_forward=1' /etc/sysctl.conf || echo 'net.ipv4.ip_forward=1' | tee -a /etc/sysctl.conf",
				"sysctl -p",
			},
		},
		PostInstall: map[OS][]string{
			Linux: {
				"lxd init --auto",
				"lxc storage show default >/dev/null 2>&1 || lxc storage create default dir",
				"lxc profile device show default | grep -q '^root:' || lxc profile device add default root disk path=/ pool=default",
			},
		},
		Optional: true,
	}
}
