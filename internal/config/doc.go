// Package config loads the datarouter project config file.
//
// The file is datarouter.yaml (or .yml, or datarouter.json) at the
// project root:
//
//	name: shop
//	routes: routes.yaml          # or s3://bucket/key.yaml
//	basename: /app
//	server:
//	  host: 0.0.0.0
//	  port: 8080
//	  shutdownTimeout: 10s
//	  allowedOrigins: [https://shop.example]
//	hydration:
//	  format: msgpack
//	  secret: change-me
//	metrics:
//	  enabled: true
//	  path: /metrics
//	log:
//	  level: debug
//	  format: json
//
// # Usage
//
//	cfg, err := config.LoadFromWorkingDir()
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Address())
package config
