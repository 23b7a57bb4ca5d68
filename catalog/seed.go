package catalog

import "github.com/poiesic/semsearch/core"

// SeedCorpus returns the development corpus used by the seed command and
// the engine-level tests. Ids are assigned by the store on insert.
func SeedCorpus() []Record {
	return []Record{
		{Kind: core.KindTechnology, Name: "TypeScript", Category: "Language",
			Summary:  "Typed superset of JavaScript that compiles to plain JavaScript.",
			Homepage: "https://www.typescriptlang.org"},
		{Kind: core.KindTechnology, Name: "Go", Category: "Language",
			Summary:  "Statically typed language built for simple, reliable, efficient services.",
			Homepage: "https://go.dev"},
		{Kind: core.KindTechnology, Name: "Rust", Category: "Language",
			Summary:  "Systems language focused on memory safety without garbage collection.",
			Homepage: "https://www.rust-lang.org"},
		{Kind: core.KindTechnology, Name: "PostgreSQL", Category: "Database",
			Summary:  "Advanced open-source relational database with strong SQL compliance.",
			Homepage: "https://www.postgresql.org"},
		{Kind: core.KindTechnology, Name: "Redis", Category: "Database",
			Summary:  "In-memory data structure store used as cache, broker, and KV database.",
			Homepage: "https://redis.io"},
		{Kind: core.KindTechnology, Name: "Docker", Category: "Infrastructure",
			Summary:  "Container runtime and tooling for packaging and shipping applications.",
			Homepage: "https://www.docker.com"},
		{Kind: core.KindTechnology, Name: "Kubernetes", Category: "Infrastructure",
			Summary:  "Container orchestration platform for automated deployment and scaling.",
			Homepage: "https://kubernetes.io"},
		{Kind: core.KindTechnology, Name: "React", Category: "Framework",
			Summary:  "Component-based JavaScript library for building user interfaces.",
			Homepage: "https://react.dev"},
		{Kind: core.KindTechnology, Name: "gRPC", Category: "Framework",
			Summary:  "High-performance RPC framework with protobuf service definitions.",
			Homepage: "https://grpc.io"},
		{Kind: core.KindTechnology, Name: "Terraform", Category: "Infrastructure",
			Summary:  "Infrastructure-as-code tool for provisioning cloud resources declaratively.",
			Homepage: "https://www.terraform.io"},

		{Kind: core.KindSkill, Name: "Frontend Development", Category: "Engineering",
			Summary: "Building accessible, responsive browser interfaces and design systems.",
			Level:   "senior", Years: 8},
		{Kind: core.KindSkill, Name: "Distributed Systems", Category: "Engineering",
			Summary: "Designing fault-tolerant services, consensus, replication, and sharding.",
			Level:   "senior", Years: 10},
		{Kind: core.KindSkill, Name: "Database Administration", Category: "Operations",
			Summary: "Schema design, query tuning, backup strategy, and replication management.",
			Level:   "intermediate", Years: 5},
		{Kind: core.KindSkill, Name: "Site Reliability Engineering", Category: "Operations",
			Summary: "Capacity planning, incident response, observability, and error budgets.",
			Level:   "senior", Years: 7},
		{Kind: core.KindSkill, Name: "Machine Learning", Category: "Data",
			Summary: "Training and evaluating models, feature engineering, and serving pipelines.",
			Level:   "intermediate", Years: 4},
		{Kind: core.KindSkill, Name: "Technical Writing", Category: "Communication",
			Summary: "Producing clear architecture documents, runbooks, and API references.",
			Level:   "senior", Years: 9},
	}
}
