package preview

import "fmt"

// containerDef is the minimal synthesised container definition §4.9
// calls for: "install deps, copy tree, expose a known port, run the
// development command with watch."
type containerDef struct {
	Dockerfile    string
	ContainerPort int
	MemoryMiB     int
	CPUs          float64
}

// buildContainerDef synthesises the definition for t, using caps/ports
// appropriate to whether the project is a service (higher caps) or a
// static asset tree (lower caps), per §4.9's "e.g., 512 MiB ... 256 MiB
// for static" figures.
func buildContainerDef(t ProjectType, memoryMiB int, cpus float64) containerDef {
	switch t {
	case ProjectPythonService:
		return containerDef{
			Dockerfile:    pythonServiceDockerfile,
			ContainerPort: 8000,
			MemoryMiB:     memoryMiB,
			CPUs:          cpus,
		}
	case ProjectReactSPA:
		return containerDef{
			Dockerfile:    reactSPADockerfile,
			ContainerPort: 5173,
			MemoryMiB:     memoryMiB,
			CPUs:          cpus,
		}
	case ProjectNodeService:
		return containerDef{
			Dockerfile:    nodeServiceDockerfile,
			ContainerPort: 3000,
			MemoryMiB:     memoryMiB,
			CPUs:          cpus,
		}
	case ProjectStaticSite:
		return containerDef{
			Dockerfile:    staticSiteDockerfile,
			ContainerPort: 8080,
			MemoryMiB:     minInt(memoryMiB, 256),
			CPUs:          cpus,
		}
	default:
		return containerDef{
			Dockerfile:    staticSiteDockerfile,
			ContainerPort: 8080,
			MemoryMiB:     minInt(memoryMiB, 256),
			CPUs:          cpus,
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

const pythonServiceDockerfile = `FROM python:3.12-slim
WORKDIR /app
COPY requirements.txt* pyproject.toml* ./
RUN pip install --no-cache-dir -r requirements.txt 2>/dev/null || pip install --no-cache-dir . 2>/dev/null || true
COPY . .
EXPOSE 8000
CMD ["python", "-m", "flask", "--app", "app", "run", "--host=0.0.0.0", "--port=8000", "--debug"]
`

const reactSPADockerfile = `FROM node:20-slim
WORKDIR /app
COPY package.json package-lock.json* ./
RUN npm install
COPY . .
EXPOSE 5173
CMD ["npm", "run", "dev", "--", "--host", "0.0.0.0", "--port", "5173"]
`

const nodeServiceDockerfile = `FROM node:20-slim
WORKDIR /app
COPY package.json package-lock.json* ./
RUN npm install
COPY . .
EXPOSE 3000
CMD ["npm", "run", "dev"]
`

const staticSiteDockerfile = `FROM python:3.12-slim
WORKDIR /app
COPY . .
EXPOSE 8080
CMD ["python", "-m", "http.server", "8080"]
`

// devCommandLabel is a human-readable summary of what a container runs,
// used for log lines.
func devCommandLabel(t ProjectType) string {
	return fmt.Sprintf("development server for %s", t)
}
