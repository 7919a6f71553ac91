package sandbox

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func testProvider(clientset *fake.Clientset, cfg KubernetesConfig) *KubernetesProvider {
	if cfg.Namespace == "" {
		cfg.Namespace = "test-ns"
	}
	if cfg.Image == "" {
		cfg.Image = "boring-ui/sandbox:latest"
	}
	if cfg.DefaultCPULimit == "" {
		cfg.DefaultCPULimit = "500m"
	}
	if cfg.DefaultMemoryLimit == "" {
		cfg.DefaultMemoryLimit = "256Mi"
	}
	return &KubernetesProvider{
		clientset:  clientset,
		config:     cfg,
		httpClient: &http.Client{Timeout: time.Second},
	}
}

// markPodRunning polls until the pod exists, then flips it to Running with an IP.
func markPodRunning(t *testing.T, clientset *fake.Clientset, namespace, name string) {
	t.Helper()

	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			pod, err := clientset.CoreV1().Pods(namespace).Get(context.Background(), name, metav1.GetOptions{})
			if err == nil {
				pod.Status.Phase = corev1.PodRunning
				pod.Status.PodIP = "10.0.0.1"
				clientset.CoreV1().Pods(namespace).Update(context.Background(), pod, metav1.UpdateOptions{})
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()
}

func TestCreateSandbox_PodSpec(t *testing.T) {
	clientset := fake.NewClientset()
	p := testProvider(clientset, KubernetesConfig{})
	markPodRunning(t, clientset, "test-ns", "ws-1-sbx")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.CreateSandbox(ctx, "ws-1-sbx"); err != nil {
		t.Fatalf("CreateSandbox failed: %v", err)
	}

	pod, err := clientset.CoreV1().Pods("test-ns").Get(ctx, "ws-1-sbx", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("failed to get pod: %v", err)
	}

	container := pod.Spec.Containers[0]
	if container.Image != "boring-ui/sandbox:latest" {
		t.Errorf("expected sandbox image, got %s", container.Image)
	}
	if pod.Spec.RestartPolicy != corev1.RestartPolicyNever {
		t.Errorf("expected restart policy Never, got %s", pod.Spec.RestartPolicy)
	}
	if pod.Labels["app.kubernetes.io/managed-by"] != "boring-ui" {
		t.Error("expected managed-by label to be 'boring-ui'")
	}
	if pod.Labels["boring-ui/sandbox"] != "ws-1-sbx" {
		t.Error("expected sandbox label to carry the sandbox name")
	}
	if container.Ports[0].ContainerPort != sandboxAgentPort {
		t.Errorf("expected agent port %d, got %d", sandboxAgentPort, container.Ports[0].ContainerPort)
	}
}

func TestCreateSandbox_SetsResourceLimits(t *testing.T) {
	clientset := fake.NewClientset()
	p := testProvider(clientset, KubernetesConfig{DefaultCPULimit: "1", DefaultMemoryLimit: "512Mi"})
	markPodRunning(t, clientset, "test-ns", "ws-1-sbx")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.CreateSandbox(ctx, "ws-1-sbx"); err != nil {
		t.Fatalf("CreateSandbox failed: %v", err)
	}

	pod, _ := clientset.CoreV1().Pods("test-ns").Get(ctx, "ws-1-sbx", metav1.GetOptions{})
	container := pod.Spec.Containers[0]

	if cpu := container.Resources.Limits.Cpu().String(); cpu != "1" {
		t.Errorf("expected CPU limit '1', got '%s'", cpu)
	}
	if mem := container.Resources.Limits.Memory().String(); mem != "512Mi" {
		t.Errorf("expected memory limit '512Mi', got '%s'", mem)
	}
}

func TestCreateSandbox_WithServiceAccount(t *testing.T) {
	clientset := fake.NewClientset()
	p := testProvider(clientset, KubernetesConfig{ServiceAccount: "sandbox-sa"})
	markPodRunning(t, clientset, "test-ns", "ws-1-sbx")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.CreateSandbox(ctx, "ws-1-sbx"); err != nil {
		t.Fatalf("CreateSandbox failed: %v", err)
	}

	pod, _ := clientset.CoreV1().Pods("test-ns").Get(ctx, "ws-1-sbx", metav1.GetOptions{})
	if pod.Spec.ServiceAccountName != "sandbox-sa" {
		t.Errorf("expected service account 'sandbox-sa', got '%s'", pod.Spec.ServiceAccountName)
	}
}

func TestCreateSandbox_FailedPod(t *testing.T) {
	clientset := fake.NewClientset()
	p := testProvider(clientset, KubernetesConfig{})

	// Flip the pod to Failed instead of Running
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			pod, err := clientset.CoreV1().Pods("test-ns").Get(context.Background(), "ws-1-sbx", metav1.GetOptions{})
			if err == nil {
				pod.Status.Phase = corev1.PodFailed
				clientset.CoreV1().Pods("test-ns").Update(context.Background(), pod, metav1.UpdateOptions{})
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := p.CreateSandbox(ctx, "ws-1-sbx")
	if err == nil {
		t.Fatal("expected error for failed pod")
	}
	if !strings.Contains(err.Error(), "never became ready") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGetSandbox_Running(t *testing.T) {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "ws-1-sbx",
			Namespace: "test-ns",
		},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			PodIP: "10.0.0.7",
		},
	}
	clientset := fake.NewClientset(pod)
	p := testProvider(clientset, KubernetesConfig{})

	info, err := p.GetSandbox(context.Background(), "ws-1-sbx")
	if err != nil {
		t.Fatalf("GetSandbox failed: %v", err)
	}
	if !info.Running {
		t.Error("expected running sandbox")
	}
	if !strings.HasPrefix(info.Address, "10.0.0.7:") {
		t.Errorf("expected address on pod IP, got %s", info.Address)
	}
}

func TestGetSandbox_NotFound(t *testing.T) {
	clientset := fake.NewClientset()
	p := testProvider(clientset, KubernetesConfig{})

	_, err := p.GetSandbox(context.Background(), "ws-404-sbx")
	if err == nil {
		t.Fatal("expected error for missing sandbox")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDeleteSandbox(t *testing.T) {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "ws-1-sbx",
			Namespace: "test-ns",
		},
	}
	clientset := fake.NewClientset(pod)
	p := testProvider(clientset, KubernetesConfig{})

	if err := p.DeleteSandbox(context.Background(), "ws-1-sbx"); err != nil {
		t.Fatalf("DeleteSandbox failed: %v", err)
	}

	pods, _ := clientset.CoreV1().Pods("test-ns").List(context.Background(), metav1.ListOptions{})
	if len(pods.Items) != 0 {
		t.Errorf("expected 0 pods after delete, got %d", len(pods.Items))
	}
}

func TestWaitForPodIP_Timeout(t *testing.T) {
	// Pod exists but never gets an IP
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "ws-1-sbx",
			Namespace: "test-ns",
		},
		Status: corev1.PodStatus{Phase: corev1.PodPending},
	}
	clientset := fake.NewClientset(pod)
	p := testProvider(clientset, KubernetesConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := p.waitForPodIP(ctx, "ws-1-sbx"); err == nil {
		t.Error("expected timeout error, got nil")
	}
}
