package sandbox

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// sandboxAgentPort is the port the runtime image's supervisor listens on.
// The provider drives uploads, bootstrap and health checks through it.
const sandboxAgentPort = 8642

// KubernetesConfig holds configuration for the Kubernetes provider.
type KubernetesConfig struct {
	// Namespace where sandbox pods are created
	Namespace string
	// Image is the sandbox runtime image
	Image string
	// ServiceAccount for sandbox pods (optional)
	ServiceAccount string
	// Default resource limits for sandboxes
	DefaultCPULimit    string
	DefaultMemoryLimit string
}

// KubernetesProvider implements Provider using one pod per sandbox.
type KubernetesProvider struct {
	clientset  kubernetes.Interface
	config     KubernetesConfig
	httpClient *http.Client
}

// homeDir returns the user's home directory.
func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	return os.Getenv("USERPROFILE") // Windows
}

// NewKubernetesProvider creates a Kubernetes-based sandbox provider.
// Tries in-cluster configuration first, falls back to kubeconfig for local development.
func NewKubernetesProvider(cfg KubernetesConfig) (*KubernetesProvider, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := filepath.Join(homeDir(), ".kube", "config")
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	if cfg.Image == "" {
		return nil, fmt.Errorf("sandbox image is required")
	}
	if cfg.DefaultCPULimit == "" {
		cfg.DefaultCPULimit = "500m"
	}
	if cfg.DefaultMemoryLimit == "" {
		cfg.DefaultMemoryLimit = "512Mi"
	}

	return &KubernetesProvider{
		clientset:  clientset,
		config:     cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// CreateSandbox creates the sandbox pod and waits for it to be running with
// an assigned IP.
func (k *KubernetesProvider) CreateSandbox(ctx context.Context, name string) error {
	resources := corev1.ResourceRequirements{
		Limits: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse(k.config.DefaultCPULimit),
			corev1.ResourceMemory: resource.MustParse(k.config.DefaultMemoryLimit),
		},
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: k.config.Namespace,
			Labels: map[string]string{
				"app.kubernetes.io/managed-by": "boring-ui",
				"boring-ui/sandbox":            name,
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				{
					Name:      "sandbox",
					Image:     k.config.Image,
					Resources: resources,
					Ports: []corev1.ContainerPort{
						{ContainerPort: sandboxAgentPort},
					},
				},
			},
		},
	}
	if k.config.ServiceAccount != "" {
		pod.Spec.ServiceAccountName = k.config.ServiceAccount
	}

	_, err := k.clientset.CoreV1().Pods(k.config.Namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("failed to create sandbox pod %s: %w", name, err)
	}

	if _, err := k.waitForPodIP(ctx, name); err != nil {
		return fmt.Errorf("sandbox pod %s never became ready: %w", name, err)
	}
	return nil
}

// UploadArtifact streams the bundle to the pod's supervisor agent.
func (k *KubernetesProvider) UploadArtifact(ctx context.Context, name, bundlePath string) error {
	ip, err := k.podIP(ctx, name)
	if err != nil {
		return err
	}

	f, err := os.Open(bundlePath)
	if err != nil {
		return fmt.Errorf("failed to open bundle %s: %w", bundlePath, err)
	}
	defer f.Close()

	url := fmt.Sprintf("http://%s:%d/artifact", ip, sandboxAgentPort)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, f)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/gzip")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload bundle to %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("sandbox %s rejected bundle upload with status %d", name, resp.StatusCode)
	}
	return nil
}

// Bootstrap asks the supervisor agent to unpack and initialize the bundle.
func (k *KubernetesProvider) Bootstrap(ctx context.Context, name string) error {
	return k.agentPost(ctx, name, "bootstrap")
}

// HealthCheck probes the supervisor agent's health endpoint.
func (k *KubernetesProvider) HealthCheck(ctx context.Context, name string) error {
	ip, err := k.podIP(ctx, name)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s:%d/healthz", ip, sandboxAgentPort)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request to %s failed: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sandbox %s health check returned status %d", name, resp.StatusCode)
	}
	return nil
}

// GetSandbox returns the pod's current state.
func (k *KubernetesProvider) GetSandbox(ctx context.Context, name string) (*Info, error) {
	pod, err := k.clientset.CoreV1().Pods(k.config.Namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("sandbox %s not found", name)
		}
		return nil, fmt.Errorf("failed to get sandbox pod %s: %w", name, err)
	}
	info := &Info{
		Name:    name,
		Running: pod.Status.Phase == corev1.PodRunning,
	}
	if pod.Status.PodIP != "" {
		info.Address = fmt.Sprintf("%s:%d", pod.Status.PodIP, sandboxAgentPort)
	}
	return info, nil
}

// DeleteSandbox deletes the sandbox pod.
func (k *KubernetesProvider) DeleteSandbox(ctx context.Context, name string) error {
	propagation := metav1.DeletePropagationForeground
	err := k.clientset.CoreV1().Pods(k.config.Namespace).Delete(ctx, name, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if err != nil {
		return fmt.Errorf("failed to delete sandbox pod %s: %w", name, err)
	}
	return nil
}

func (k *KubernetesProvider) agentPost(ctx context.Context, name, endpoint string) error {
	ip, err := k.podIP(ctx, name)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s:%d/%s", ip, sandboxAgentPort, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request to %s failed: %w", endpoint, name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("sandbox %s %s returned status %d", name, endpoint, resp.StatusCode)
	}
	return nil
}

func (k *KubernetesProvider) podIP(ctx context.Context, name string) (string, error) {
	pod, err := k.clientset.CoreV1().Pods(k.config.Namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get sandbox pod %s: %w", name, err)
	}
	if pod.Status.PodIP == "" {
		return "", fmt.Errorf("sandbox pod %s has no IP yet", name)
	}
	return pod.Status.PodIP, nil
}

// waitForPodIP polls until the pod is running with an assigned IP.
func (k *KubernetesProvider) waitForPodIP(ctx context.Context, name string) (string, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			pod, err := k.clientset.CoreV1().Pods(k.config.Namespace).Get(ctx, name, metav1.GetOptions{})
			if err != nil {
				return "", err
			}
			if pod.Status.Phase == corev1.PodFailed {
				return "", fmt.Errorf("sandbox pod %s failed during startup", name)
			}
			if pod.Status.Phase == corev1.PodRunning && pod.Status.PodIP != "" {
				return pod.Status.PodIP, nil
			}
		}
	}
}
