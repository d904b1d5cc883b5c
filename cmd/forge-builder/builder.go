// ABOUTME: Project scaffold generation for build and edit commands
// ABOUTME: Produces an in-memory zip, returned base64-encoded for the envelope

package main

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
)

// buildArtifact generates a project scaffold for the requested type and
// returns it as a base64-encoded zip. Edits regenerate the scaffold with the
// edit request appended to the feature list.
func buildArtifact(command string, args map[string]string) (string, error) {
	name := args["name"]
	if name == "" {
		return "", fmt.Errorf("build args missing project name")
	}
	projectType := args["type"]
	features := args["features"]
	if command == "edit" && args["editRequest"] != "" {
		features = strings.TrimSpace(features + "\n" + args["editRequest"])
	}

	files, err := scaffold(name, projectType, args["network"], features)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for path, body := range files {
		f, err := zw.Create(name + "/" + path)
		if err != nil {
			return "", fmt.Errorf("creating zip entry %s: %w", path, err)
		}
		if _, err := f.Write([]byte(body)); err != nil {
			return "", fmt.Errorf("writing zip entry %s: %w", path, err)
		}
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("closing zip: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// scaffold lays out the starter files for each supported project type.
func scaffold(name, projectType, network, features string) (map[string]string, error) {
	readme := fmt.Sprintf("# %s\n\nFeatures:\n%s\n", name, features)
	if network != "" {
		readme += fmt.Sprintf("\nNetwork: %s\n", network)
	}

	switch projectType {
	case "html":
		return map[string]string{
			"README.md":  readme,
			"index.html": indexHTML(name),
			"style.css":  baseCSS,
		}, nil
	case "react":
		return map[string]string{
			"README.md":     readme,
			"package.json":  packageJSON(name, `"react": "^18.3.0", "react-dom": "^18.3.0"`),
			"src/App.jsx":   fmt.Sprintf("export default function App() {\n  return <h1>%s</h1>;\n}\n", name),
			"src/index.jsx": "import { createRoot } from 'react-dom/client';\nimport App from './App';\n\ncreateRoot(document.getElementById('root')).render(<App />);\n",
			"index.html":    indexHTML(name),
		}, nil
	case "vue":
		return map[string]string{
			"README.md":    readme,
			"package.json": packageJSON(name, `"vue": "^3.4.0"`),
			"src/App.vue":  fmt.Sprintf("<template>\n  <h1>%s</h1>\n</template>\n", name),
			"src/main.js":  "import { createApp } from 'vue';\nimport App from './App.vue';\n\ncreateApp(App).mount('#app');\n",
			"index.html":   indexHTML(name),
		}, nil
	case "node":
		return map[string]string{
			"README.md":    readme,
			"package.json": packageJSON(name, `"express": "^4.19.0"`),
			"server.js":    nodeServer(name),
		}, nil
	case "python":
		return map[string]string{
			"README.md":        readme,
			"requirements.txt": "flask>=3.0\n",
			"app.py":           pythonApp(name),
		}, nil
	case "full-stack":
		return map[string]string{
			"README.md":           readme,
			"package.json":        packageJSON(name, `"express": "^4.19.0", "react": "^18.3.0", "react-dom": "^18.3.0"`),
			"server/server.js":    nodeServer(name),
			"client/src/App.jsx":  fmt.Sprintf("export default function App() {\n  return <h1>%s</h1>;\n}\n", name),
			"client/index.html":   indexHTML(name),
			"client/src/index.jsx": "import { createRoot } from 'react-dom/client';\nimport App from './App';\n\ncreateRoot(document.getElementById('root')).render(<App />);\n",
		}, nil
	default:
		return nil, fmt.Errorf("unsupported project type %q", projectType)
	}
}

func indexHTML(name string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>%s</title>
  <link rel="stylesheet" href="style.css">
</head>
<body>
  <main>
    <h1>%s</h1>
  </main>
</body>
</html>
`, name, name)
}

func packageJSON(name, deps string) string {
	return fmt.Sprintf(`{
  "name": %q,
  "version": "0.1.0",
  "private": true,
  "dependencies": { %s }
}
`, name, deps)
}

func nodeServer(name string) string {
	return fmt.Sprintf(`const express = require('express');
const app = express();

app.get('/', (req, res) => res.send('%s'));

const port = process.env.PORT || 3000;
app.listen(port, () => console.log('listening on', port));
`, name)
}

func pythonApp(name string) string {
	return fmt.Sprintf(`from flask import Flask

app = Flask(__name__)


@app.route("/")
def index():
    return "%s"


if __name__ == "__main__":
    app.run(debug=True)
`, name)
}

const baseCSS = `body {
  font-family: system-ui, sans-serif;
  margin: 0;
  display: grid;
  place-items: center;
  min-height: 100vh;
}
`
